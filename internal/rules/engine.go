package rules

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mbd888/walletscope/internal/features"
)

// Factor identifiers, stable across weight table versions so clients
// can key on them.
const (
	FactorAge           = "age"
	FactorVelocity      = "velocity"
	FactorConcentration = "concentration"
	FactorNeighborhood  = "neighborhood"
	FactorDormancy      = "dormancy"
	FactorLists         = "lists"
)

// Membership records which curated lists the subject itself appears on.
type Membership struct {
	Sanctioned  []string // names of sanction lists matched, empty when clean
	Mixer       bool
	ScamCluster bool
}

// FactorContribution is one factor's explained contribution to the
// weighted sum.
type FactorContribution struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Impact  float64 `json:"impact"`
	Bucket  string  `json:"bucket"`
	Details string  `json:"details,omitempty"`
}

// Result is a complete, self-describing risk assessment.
type Result struct {
	Address         string               `json:"address"`
	Network         string               `json:"network"`
	Score           int                  `json:"score"`
	Blocked         bool                 `json:"blocked"`
	SanctionHits    []string             `json:"sanctionHits,omitempty"`
	Factors         []FactorContribution `json:"factors"`
	Reasons         []string             `json:"reasons"`
	Features        features.Vector      `json:"features"`
	Degraded        bool                 `json:"degraded"`
	Confidence      float64              `json:"confidence"`
	BaseScore       float64              `json:"baseScore"`
	RawContribution float64              `json:"rawContribution"`
	CachedAt        time.Time            `json:"cachedAt,omitempty"`
}

// Engine is the weighted rule ensemble. It holds no clock and no
// mutable state: identical inputs always produce identical results.
type Engine struct {
	weights *WeightTable
}

// NewEngine creates an engine; a nil table means DefaultWeights.
func NewEngine(w *WeightTable) *Engine {
	if w == nil {
		w = DefaultWeights()
	}
	return &Engine{weights: w}
}

// Weights exposes the active table, for the explain surface.
func (e *Engine) Weights() *WeightTable {
	return e.weights
}

// Evaluate scores one address. degraded marks that the feature vector
// was built from synthetic fallback history; it lowers confidence but
// never fails the evaluation.
func (e *Engine) Evaluate(address, network string, v features.Vector, m Membership, degraded bool) *Result {
	w := e.weights

	factors := []FactorContribution{
		e.ageFactor(v),
		e.velocityFactor(v),
		e.concentrationFactor(v),
		e.neighborhoodFactor(v),
		e.dormancyFactor(v),
		e.listsFactor(m),
	}

	raw := w.Base
	for i := range factors {
		factors[i].Impact = sanitize(factors[i].Impact)
		raw += factors[i].Impact
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return math.Abs(factors[i].Impact) > math.Abs(factors[j].Impact)
	})

	score := clampScore(math.Round(raw))
	blocked := false
	var reasons []string

	sanctioned := len(m.Sanctioned) > 0
	switch {
	case sanctioned:
		score = int(w.Overrides.SanctionedScore)
		blocked = true
		reasons = append(reasons,
			fmt.Sprintf("address is on sanction list %s; score pinned to %d and address blocked",
				m.Sanctioned[0], score))
	case m.Mixer && m.ScamCluster:
		if f := int(w.Overrides.ComboFloor); score < f {
			score = f
		}
		reasons = append(reasons, "address appears on both mixer and scam-cluster lists")
	case m.Mixer:
		if f := int(w.Overrides.SingleFloor); score < f {
			score = f
		}
		reasons = append(reasons, "address appears on a mixer list")
	case m.ScamCluster:
		if f := int(w.Overrides.SingleFloor); score < f {
			score = f
		}
		reasons = append(reasons, "address appears on a scam-cluster list")
	}

	if degraded {
		if v.TxCount == 0 {
			reasons = append(reasons, "no transaction history found; scored with low confidence")
		} else {
			reasons = append(reasons, "chain data unavailable; scored from synthetic fallback history")
		}
	}
	// Every factor that moved the score is explained, in both
	// directions; the lists factor is covered by the override reasons.
	for _, f := range factors {
		if f.Impact != 0 && f.ID != FactorLists {
			reasons = append(reasons, f.Details)
		}
	}

	return &Result{
		Address:         address,
		Network:         network,
		Score:           score,
		Blocked:         blocked,
		SanctionHits:    m.Sanctioned,
		Factors:         factors,
		Reasons:         reasons,
		Features:        v,
		Degraded:        degraded,
		Confidence:      confidence(v, degraded),
		BaseScore:       w.Base,
		RawContribution: raw,
	}
}

func (e *Engine) ageFactor(v features.Vector) FactorContribution {
	f := FactorContribution{ID: FactorAge, Label: "Account age"}
	a := e.weights.Age
	switch {
	case v.AgeDays == 0:
		f.Bucket = "unknown"
		f.Details = "no history available; age treated as neutral"
	case v.AgeDays < a.BrandNewDays:
		f.Bucket = "brand_new"
		f.Impact = a.BrandNewImpact
		f.Details = fmt.Sprintf("account first seen %.0f days ago", v.AgeDays)
	case v.AgeDays < a.YoungDays:
		f.Bucket = "young"
		f.Impact = a.YoungImpact
		f.Details = fmt.Sprintf("account first seen %.0f days ago", v.AgeDays)
	case v.AgeDays < a.MaturingDays:
		f.Bucket = "maturing"
		f.Impact = a.MaturingImpact
		f.Details = fmt.Sprintf("account first seen %.0f days ago", v.AgeDays)
	default:
		f.Bucket = "established"
		f.Impact = a.EstablishedImpact
		f.Details = fmt.Sprintf("established account, %.0f days old", v.AgeDays)
	}
	return f
}

func (e *Engine) velocityFactor(v features.Vector) FactorContribution {
	f := FactorContribution{ID: FactorVelocity, Label: "Transaction velocity", Bucket: "normal"}
	w := e.weights.Velocity
	switch {
	case v.TxPerDay >= w.ExtremeTxPerDay || v.BurstScore >= w.ExtremeBurst:
		f.Bucket = "extreme"
		f.Impact = w.ExtremeImpact
		f.Details = fmt.Sprintf("%.1f tx/day with burst score %.2f", v.TxPerDay, v.BurstScore)
	case v.TxPerDay >= w.ElevatedTxPerDay || v.BurstScore >= w.ElevatedBurst:
		f.Bucket = "elevated"
		f.Impact = w.ElevatedImpact
		f.Details = fmt.Sprintf("%.1f tx/day with burst score %.2f", v.TxPerDay, v.BurstScore)
	case v.TxPerDay >= w.ActiveTxPerDay:
		f.Bucket = "active"
		f.Impact = w.ActiveImpact
		f.Details = fmt.Sprintf("%.1f tx/day", v.TxPerDay)
	}
	return f
}

func (e *Engine) concentrationFactor(v features.Vector) FactorContribution {
	f := FactorContribution{ID: FactorConcentration, Label: "Counterparty concentration", Bucket: "normal"}
	w := e.weights.Concentration
	switch {
	case v.UniqueCounterparties == 0:
		f.Bucket = "none"
	case v.UniqueCounterparties <= w.NarrowMaxUnique && v.TopCounterpartyShare >= w.NarrowMinShare:
		f.Bucket = "narrow"
		f.Impact = w.NarrowImpact
		f.Details = fmt.Sprintf("%.0f%% of activity with one of %d counterparties",
			v.TopCounterpartyShare*100, v.UniqueCounterparties)
	case v.TopCounterpartyShare >= w.SkewedMinShare:
		f.Bucket = "skewed"
		f.Impact = w.SkewedImpact
		f.Details = fmt.Sprintf("top counterparty carries %.0f%% of activity",
			v.TopCounterpartyShare*100)
	case v.UniqueCounterparties >= w.DiverseMinUnique && v.TopCounterpartyShare <= w.DiverseMaxShare:
		f.Bucket = "diverse"
		f.Impact = w.DiverseImpact
		f.Details = fmt.Sprintf("%d counterparties, none dominant", v.UniqueCounterparties)
	}
	return f
}

func (e *Engine) neighborhoodFactor(v features.Vector) FactorContribution {
	f := FactorContribution{ID: FactorNeighborhood, Label: "Neighborhood taint", Bucket: "clean"}
	w := e.weights.Neighbors
	impact := 0.0
	switch {
	case v.SanctionedNeighborRatio >= w.SanctionedHighRatio:
		f.Bucket = "sanctioned_heavy"
		impact += w.SanctionedHighImpact
		f.Details = fmt.Sprintf("%.0f%% of direct counterparties are sanctioned",
			v.SanctionedNeighborRatio*100)
	case v.SanctionedNeighborRatio > 0:
		f.Bucket = "sanctioned_touch"
		impact += w.SanctionedAnyImpact
		f.Details = "at least one direct counterparty is sanctioned"
	}
	switch {
	case v.HighRiskNeighborRatio >= w.HighRiskHighRatio:
		impact += w.HighRiskHighImpact
		if f.Bucket == "clean" {
			f.Bucket = "high_risk_heavy"
			f.Details = fmt.Sprintf("%.0f%% of direct counterparties are high risk",
				v.HighRiskNeighborRatio*100)
		}
	case v.HighRiskNeighborRatio >= w.HighRiskLowRatio:
		impact += w.HighRiskLowImpact
		if f.Bucket == "clean" {
			f.Bucket = "high_risk_touch"
			f.Details = "some direct counterparties are high risk"
		}
	}
	if v.NeighborCount >= w.CrowdedMinCount {
		impact += w.CrowdedImpact
	}
	f.Impact = impact
	return f
}

func (e *Engine) dormancyFactor(v features.Vector) FactorContribution {
	f := FactorContribution{ID: FactorDormancy, Label: "Dormancy", Bucket: "active"}
	w := e.weights.Dormancy
	switch {
	case v.IsDormant:
		f.Bucket = "dormant"
		f.Impact = w.DormantImpact
		f.Details = fmt.Sprintf("no activity for %.0f days", v.DormantDays)
	case v.ResurrectedRecently:
		f.Bucket = "resurrected"
		f.Impact = w.ResurrectedImpact
		f.Details = "long-established account suddenly active again"
	}
	return f
}

func (e *Engine) listsFactor(m Membership) FactorContribution {
	f := FactorContribution{ID: FactorLists, Label: "Curated list membership", Bucket: "clean"}
	w := e.weights.Lists
	impact := 0.0
	switch {
	case len(m.Sanctioned) > 0:
		f.Bucket = "sanctioned"
		impact += w.SanctionedImpact
		f.Details = fmt.Sprintf("listed on %s", m.Sanctioned[0])
	case m.Mixer && m.ScamCluster:
		f.Bucket = "mixer_and_scam"
		impact += w.MixerImpact + w.ScamClusterImpact + w.ComboExtraImpact
		f.Details = "listed as both mixer and scam cluster"
	case m.Mixer:
		f.Bucket = "mixer"
		impact += w.MixerImpact
		f.Details = "listed as a mixing service"
	case m.ScamCluster:
		f.Bucket = "scam_cluster"
		impact += w.ScamClusterImpact
		f.Details = "listed in a known scam cluster"
	}
	f.Impact = impact
	return f
}

// confidence reflects how much history backed the assessment, not how
// risky the address is.
func confidence(v features.Vector, degraded bool) float64 {
	switch {
	case degraded:
		return 0.25
	case v.TxCount < 5:
		return 0.6
	default:
		return 0.95
	}
}

func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func clampScore(f float64) int {
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(f)
}
