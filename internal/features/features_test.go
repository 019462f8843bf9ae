package features

import (
	"fmt"
	"testing"
	"time"

	"github.com/mbd888/walletscope/internal/chain"
)

const subject = "0xaaaa35cc6634c0532925a3b844bc454e4438f44e"

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func tx(from, to string, at time.Time) chain.Transaction {
	return chain.Transaction{From: from, To: to, Value: "1", Timestamp: at}
}

func peer(i int) string {
	return fmt.Sprintf("0x%040d", i)
}

func TestEmptyHistoryIsUnknownMarker(t *testing.T) {
	v := Extract(nil, subject, now)

	if v.AgeDays != 0 {
		t.Errorf("empty history AgeDays = %f, want 0 (unknown marker)", v.AgeDays)
	}
	if v.TxCount != 0 || v.UniqueCounterparties != 0 || v.BurstScore != 0 {
		t.Errorf("empty history should produce the zero vector, got %+v", v)
	}
	if v.IsDormant || v.ResurrectedRecently {
		t.Error("empty history must not flag dormancy signals")
	}
}

func TestBasicAgeAndActivity(t *testing.T) {
	txs := []chain.Transaction{
		tx(subject, peer(1), now.AddDate(0, 0, -100)),
		tx(peer(2), subject, now.AddDate(0, 0, -50)),
		tx(subject, peer(1), now.AddDate(0, 0, -1)),
	}

	v := Extract(txs, subject, now)

	if v.AgeDays < 99 || v.AgeDays > 101 {
		t.Errorf("AgeDays = %f, want ~100", v.AgeDays)
	}
	if v.TxCount != 3 {
		t.Errorf("TxCount = %d, want 3", v.TxCount)
	}
	if v.ActiveDays != 3 {
		t.Errorf("ActiveDays = %d, want 3", v.ActiveDays)
	}
	if v.TxPerDay != 1 {
		t.Errorf("TxPerDay = %f, want 1", v.TxPerDay)
	}
	if v.UniqueCounterparties != 2 {
		t.Errorf("UniqueCounterparties = %d, want 2", v.UniqueCounterparties)
	}
}

func TestUnsortedInputIsSortedFirst(t *testing.T) {
	txs := []chain.Transaction{
		tx(subject, peer(1), now.AddDate(0, 0, -1)),
		tx(subject, peer(1), now.AddDate(0, 0, -300)),
		tx(subject, peer(1), now.AddDate(0, 0, -150)),
	}

	v := Extract(txs, subject, now)
	if v.AgeDays < 299 || v.AgeDays > 301 {
		t.Errorf("AgeDays = %f, want ~300 (oldest tx, not first element)", v.AgeDays)
	}
}

func TestSelfTransfersExcludedFromCounterparties(t *testing.T) {
	txs := []chain.Transaction{
		tx(subject, subject, now.AddDate(0, 0, -10)),
		tx(subject, peer(1), now.AddDate(0, 0, -5)),
	}

	v := Extract(txs, subject, now)
	if v.UniqueCounterparties != 1 {
		t.Errorf("UniqueCounterparties = %d, want 1 (self-transfer excluded)", v.UniqueCounterparties)
	}
	if v.TxCount != 2 {
		t.Errorf("TxCount = %d, want 2 (self-transfer still counts as a tx)", v.TxCount)
	}
}

func TestTopCounterpartyShare(t *testing.T) {
	var txs []chain.Transaction
	// 8 txs with peer 1, 2 with peer 2
	for i := 0; i < 8; i++ {
		txs = append(txs, tx(subject, peer(1), now.AddDate(0, 0, -i-1)))
	}
	txs = append(txs, tx(peer(2), subject, now.AddDate(0, 0, -20)))
	txs = append(txs, tx(peer(2), subject, now.AddDate(0, 0, -21)))

	v := Extract(txs, subject, now)
	if v.TopCounterpartyShare != 0.8 {
		t.Errorf("TopCounterpartyShare = %f, want 0.8", v.TopCounterpartyShare)
	}
}

func TestBurstScore(t *testing.T) {
	// 60 txs in a single day inside a 30-day span: heavily concentrated.
	var txs []chain.Transaction
	burstDay := now.AddDate(0, 0, -15)
	for i := 0; i < 60; i++ {
		txs = append(txs, tx(subject, peer(i%3), burstDay.Add(time.Duration(i)*time.Minute)))
	}
	txs = append(txs, tx(subject, peer(1), now.AddDate(0, 0, -30)))
	txs = append(txs, tx(subject, peer(1), now.AddDate(0, 0, -1)))

	v := Extract(txs, subject, now)
	if v.BurstScore < 0.9 {
		t.Errorf("BurstScore = %f, want >= 0.9 for single-day concentration", v.BurstScore)
	}

	// Evenly spread activity: one tx per day, no burst.
	var even []chain.Transaction
	for i := 0; i < 30; i++ {
		even = append(even, tx(subject, peer(1), now.AddDate(0, 0, -i-1)))
	}
	v = Extract(even, subject, now)
	if v.BurstScore > 0.05 {
		t.Errorf("BurstScore = %f, want ~0 for even activity", v.BurstScore)
	}
}

func TestDormancy(t *testing.T) {
	// Old account, idle for 120 days: dormant.
	txs := []chain.Transaction{
		tx(subject, peer(1), now.AddDate(0, 0, -400)),
		tx(subject, peer(1), now.AddDate(0, 0, -120)),
	}
	v := Extract(txs, subject, now)
	if !v.IsDormant {
		t.Error("expected dormant for 400-day-old account idle 120 days")
	}
	if v.DormantDays < 119 || v.DormantDays > 121 {
		t.Errorf("DormantDays = %f, want ~120", v.DormantDays)
	}
	if v.ResurrectedRecently {
		t.Error("dormant account must not also be resurrected")
	}

	// Same old account, active yesterday: resurrected.
	txs = append(txs, tx(subject, peer(1), now.AddDate(0, 0, -1)))
	v = Extract(txs, subject, now)
	if v.IsDormant {
		t.Error("account active yesterday is not dormant")
	}
	if !v.ResurrectedRecently {
		t.Error("expected resurrection flag for old account active yesterday")
	}

	// Young account active yesterday: neither.
	young := []chain.Transaction{
		tx(subject, peer(1), now.AddDate(0, 0, -10)),
		tx(subject, peer(1), now.AddDate(0, 0, -1)),
	}
	v = Extract(young, subject, now)
	if v.IsDormant || v.ResurrectedRecently {
		t.Errorf("young active account should have no dormancy signals, got %+v", v)
	}
}

func TestFutureTimestampClampsToZero(t *testing.T) {
	txs := []chain.Transaction{
		tx(subject, peer(1), now.Add(24*time.Hour)), // clock skew
	}
	v := Extract(txs, subject, now)
	if v.AgeDays != 0 {
		t.Errorf("AgeDays = %f, want 0 for future-dated history", v.AgeDays)
	}
}

func TestCounterpartiesOrderAndTies(t *testing.T) {
	txs := []chain.Transaction{
		tx(subject, peer(3), now.AddDate(0, 0, -3)),
		tx(subject, peer(1), now.AddDate(0, 0, -2)),
		tx(subject, peer(1), now.AddDate(0, 0, -1)),
		tx(subject, peer(2), now.AddDate(0, 0, -2)),
	}

	sorted := SortByTime(txs)
	cps := Counterparties(sorted, subject)

	if len(cps) != 3 {
		t.Fatalf("expected 3 counterparties, got %d", len(cps))
	}
	if cps[0].Address != peer(1) {
		t.Errorf("top counterparty = %s, want %s", cps[0].Address, peer(1))
	}
	// peer(3) and peer(2) tie at 1 tx; peer(3) appeared first in time order.
	if cps[1].Address != peer(3) || cps[2].Address != peer(2) {
		t.Errorf("tie order = %s, %s; want first-encountered %s before %s",
			cps[1].Address, cps[2].Address, peer(3), peer(2))
	}

	// Reproducible across runs on identical input.
	for run := 0; run < 5; run++ {
		again := Counterparties(sorted, subject)
		for i := range cps {
			if again[i].Address != cps[i].Address {
				t.Fatalf("run %d: counterparty order not reproducible", run)
			}
		}
	}
}

func TestApplyNeighborSignals(t *testing.T) {
	base := Extract([]chain.Transaction{
		tx(subject, peer(1), now.AddDate(0, 0, -5)),
	}, subject, now)

	v := ApplyNeighborSignals(base, NeighborSignals{
		NeighborCount:   10,
		SanctionedRatio: 0.2,
		HighRiskRatio:   0.3,
		MixerShare:      0.5, // amplified and clamped
		ScamShare:       0.1,
	})

	if v.NeighborCount != 10 {
		t.Errorf("NeighborCount = %d, want 10", v.NeighborCount)
	}
	if v.SanctionedNeighborRatio != 0.2 {
		t.Errorf("SanctionedNeighborRatio = %f, want 0.2", v.SanctionedNeighborRatio)
	}
	if v.MixerProximity != 1.0 {
		t.Errorf("MixerProximity = %f, want 1.0 (clamped)", v.MixerProximity)
	}
	if v.ScamPlatformExposure < 0.29 || v.ScamPlatformExposure > 0.31 {
		t.Errorf("ScamPlatformExposure = %f, want ~0.3", v.ScamPlatformExposure)
	}

	// The input vector is unchanged (value semantics).
	if base.NeighborCount != 0 {
		t.Error("ApplyNeighborSignals must not mutate its input")
	}
}

func TestSyntheticHistoryIsNeutral(t *testing.T) {
	v := Extract(chain.SyntheticHistory(subject), subject, now)

	if v.UniqueCounterparties != 0 {
		t.Errorf("synthetic self-transfer must not create counterparties, got %d", v.UniqueCounterparties)
	}
	if v.TxPerDay != 1 {
		t.Errorf("TxPerDay = %f, want 1", v.TxPerDay)
	}
	if v.ResurrectedRecently {
		t.Error("synthetic history must not look recently active")
	}
}
