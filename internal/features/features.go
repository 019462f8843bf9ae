// Package features extracts a normalized feature vector from an
// address's raw transaction history.
//
// Extraction is a pure function: sorted input, no clock reads beyond the
// caller-supplied "now", no side effects, and it never fails — an empty
// history produces the all-zero vector with AgeDays=0 as an explicit
// "unknown" marker that the rule engine treats as neutral.
package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mbd888/walletscope/internal/chain"
)

const (
	dormantMinAgeDays      = 180
	dormantMinIdleDays     = 90
	resurrectedMaxIdleDays = 14
	resurrectedMinAgeDays  = 60
)

// Vector is the normalized description of an address's on-chain behavior.
// All ratio fields are clamped to [0,1]. Immutable once built.
type Vector struct {
	AgeDays              float64 `json:"ageDays"` // 0 = unknown/new
	TxCount              int     `json:"txCount"`
	ActiveDays           int     `json:"activeDays"`
	TxPerDay             float64 `json:"txPerDay"`
	BurstScore           float64 `json:"burstScore"`
	UniqueCounterparties int     `json:"uniqueCounterparties"`
	TopCounterpartyShare float64 `json:"topCounterpartyShare"`
	IsDormant            bool    `json:"isDormant"`
	DormantDays          float64 `json:"dormantDays"`
	ResurrectedRecently  bool    `json:"resurrectedRecently"`

	// 1-hop neighborhood signals, filled in by ApplyNeighborSignals.
	NeighborCount           int     `json:"neighborCount"`
	SanctionedNeighborRatio float64 `json:"sanctionedNeighborRatio"`
	HighRiskNeighborRatio   float64 `json:"highRiskNeighborRatio"`
	MixerProximity          float64 `json:"mixerProximity"`
	ScamPlatformExposure    float64 `json:"scamPlatformExposure"`
}

// Counterparty is one "other side" of the subject's transactions.
type Counterparty struct {
	Address  string
	TxCount  int
	FirstIdx int // first position in the time-sorted history, for stable ties
}

// Extract builds a Vector from raw transactions for the subject address.
// The input slice is not modified. Self-transfers are excluded from
// counterparty analysis. now supplies the reference clock so extraction
// stays reproducible.
func Extract(txs []chain.Transaction, address string, now time.Time) Vector {
	if len(txs) == 0 {
		return Vector{}
	}

	sorted := sortByTime(txs)
	subject := strings.ToLower(address)

	firstSeen := sorted[0].Timestamp
	lastSeen := sorted[len(sorted)-1].Timestamp

	ageDays := now.Sub(firstSeen).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	daysSinceLast := now.Sub(lastSeen).Hours() / 24
	if daysSinceLast < 0 {
		daysSinceLast = 0
	}

	// Distinct UTC calendar days with at least one transaction, floor 1.
	days := make(map[string]int)
	maxDayCount := 0
	for _, tx := range sorted {
		d := tx.Timestamp.UTC().Format("2006-01-02")
		days[d]++
		if days[d] > maxDayCount {
			maxDayCount = days[d]
		}
	}
	activeDays := len(days)
	if activeDays < 1 {
		activeDays = 1
	}

	txCount := len(sorted)
	txPerDay := float64(txCount) / float64(activeDays)

	spanDays := int(lastSeen.Sub(firstSeen).Hours()/24) + 1
	if spanDays < 1 {
		spanDays = 1
	}

	counterparties := Counterparties(sorted, subject)
	unique := len(counterparties)
	topShare := 0.0
	if unique > 0 {
		topShare = clamp01(float64(counterparties[0].TxCount) / float64(txCount))
	}

	isDormant := ageDays > dormantMinAgeDays && daysSinceLast > dormantMinIdleDays
	resurrected := !isDormant &&
		daysSinceLast < resurrectedMaxIdleDays &&
		ageDays > resurrectedMinAgeDays

	dormantDays := 0.0
	if isDormant {
		dormantDays = daysSinceLast
	}

	return Vector{
		AgeDays:              ageDays,
		TxCount:              txCount,
		ActiveDays:           activeDays,
		TxPerDay:             txPerDay,
		BurstScore:           burstScore(maxDayCount, txCount, spanDays),
		UniqueCounterparties: unique,
		TopCounterpartyShare: topShare,
		IsDormant:            isDormant,
		DormantDays:          dormantDays,
		ResurrectedRecently:  resurrected,
	}
}

// NeighborSignals summarizes list membership across the 1-hop
// neighborhood. These are direct-counterparty heuristics, not graph
// traversal: a neighbor either is or is not on a list.
type NeighborSignals struct {
	NeighborCount   int
	SanctionedRatio float64
	HighRiskRatio   float64
	MixerShare      float64
	ScamShare       float64
}

// ApplyNeighborSignals returns a copy of v with the neighborhood fields
// filled in. Proximity/exposure amplify the raw share so that a single
// tainted neighbor among a handful registers strongly, clamped to [0,1].
func ApplyNeighborSignals(v Vector, s NeighborSignals) Vector {
	v.NeighborCount = s.NeighborCount
	v.SanctionedNeighborRatio = clamp01(s.SanctionedRatio)
	v.HighRiskNeighborRatio = clamp01(s.HighRiskRatio)
	v.MixerProximity = clamp01(s.MixerShare * 3)
	v.ScamPlatformExposure = clamp01(s.ScamShare * 3)
	return v
}

// Counterparties returns the subject's counterparties ordered by
// descending transaction count, ties broken by first appearance in the
// time-sorted history. txs must already be time-sorted. Self-transfers
// are excluded.
func Counterparties(txs []chain.Transaction, subject string) []Counterparty {
	counts := make(map[string]*Counterparty)
	for i, tx := range txs {
		other := otherSide(tx, subject)
		if other == "" {
			continue
		}
		cp, ok := counts[other]
		if !ok {
			cp = &Counterparty{Address: other, FirstIdx: i}
			counts[other] = cp
		}
		cp.TxCount++
	}

	result := make([]Counterparty, 0, len(counts))
	for _, cp := range counts {
		result = append(result, *cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TxCount != result[j].TxCount {
			return result[i].TxCount > result[j].TxCount
		}
		return result[i].FirstIdx < result[j].FirstIdx
	})
	return result
}

// SortByTime returns a copy of txs stably sorted by ascending timestamp.
func SortByTime(txs []chain.Transaction) []chain.Transaction {
	return sortByTime(txs)
}

func sortByTime(txs []chain.Transaction) []chain.Transaction {
	sorted := make([]chain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// otherSide returns the lowercased counterparty of tx relative to
// subject, or "" for self-transfers and transactions not touching the
// subject at all.
func otherSide(tx chain.Transaction, subject string) string {
	from := strings.ToLower(tx.From)
	to := strings.ToLower(tx.To)
	if from == to {
		return "" // self-transfer
	}
	switch subject {
	case from:
		return to
	case to:
		return from
	default:
		return ""
	}
}

// burstScore measures how concentrated volume is on the busiest day:
// the busiest day's count against the mean daily rate over the activity
// span, mapped so that a 10x concentration saturates at 1.0.
func burstScore(maxDayCount, txCount, spanDays int) float64 {
	if txCount == 0 || spanDays == 0 {
		return 0
	}
	meanDaily := float64(txCount) / float64(spanDays)
	if meanDaily <= 0 {
		return 0
	}
	ratio := float64(maxDayCount) / meanDaily
	return clamp01((ratio - 1) / 9)
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
