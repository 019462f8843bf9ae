// Package rules turns a feature vector and list memberships into a
// 0-100 risk score through a weighted, fully deterministic rule
// ensemble. All tunables live in a WeightTable so operators can retune
// scoring without a rebuild.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WeightTable holds every tunable of the scoring ensemble: the neutral
// base score, per-factor bucket thresholds and impacts, and the hard
// override floors. Zero values are not meaningful; start from
// DefaultWeights or LoadFile.
type WeightTable struct {
	Version string  `yaml:"version"`
	Base    float64 `yaml:"base"`

	Age           AgeWeights           `yaml:"age"`
	Velocity      VelocityWeights      `yaml:"velocity"`
	Concentration ConcentrationWeights `yaml:"concentration"`
	Neighbors     NeighborWeights      `yaml:"neighbors"`
	Dormancy      DormancyWeights      `yaml:"dormancy"`
	Lists         ListWeights          `yaml:"lists"`
	Overrides     OverrideWeights      `yaml:"overrides"`
}

// AgeWeights buckets account age. An unknown age (no history) is
// neutral and contributes nothing.
type AgeWeights struct {
	BrandNewDays      float64 `yaml:"brandNewDays"`
	BrandNewImpact    float64 `yaml:"brandNewImpact"`
	YoungDays         float64 `yaml:"youngDays"`
	YoungImpact       float64 `yaml:"youngImpact"`
	MaturingDays      float64 `yaml:"maturingDays"`
	MaturingImpact    float64 `yaml:"maturingImpact"`
	EstablishedImpact float64 `yaml:"establishedImpact"`
}

// VelocityWeights buckets transaction rate and burstiness.
type VelocityWeights struct {
	ExtremeTxPerDay  float64 `yaml:"extremeTxPerDay"`
	ExtremeBurst     float64 `yaml:"extremeBurst"`
	ExtremeImpact    float64 `yaml:"extremeImpact"`
	ElevatedTxPerDay float64 `yaml:"elevatedTxPerDay"`
	ElevatedBurst    float64 `yaml:"elevatedBurst"`
	ElevatedImpact   float64 `yaml:"elevatedImpact"`
	ActiveTxPerDay   float64 `yaml:"activeTxPerDay"`
	ActiveImpact     float64 `yaml:"activeImpact"`
}

// ConcentrationWeights buckets how concentrated flow is on few
// counterparties. A wide, diverse neighborhood earns a small credit.
type ConcentrationWeights struct {
	NarrowMaxUnique  int     `yaml:"narrowMaxUnique"`
	NarrowMinShare   float64 `yaml:"narrowMinShare"`
	NarrowImpact     float64 `yaml:"narrowImpact"`
	SkewedMinShare   float64 `yaml:"skewedMinShare"`
	SkewedImpact     float64 `yaml:"skewedImpact"`
	DiverseMinUnique int     `yaml:"diverseMinUnique"`
	DiverseMaxShare  float64 `yaml:"diverseMaxShare"`
	DiverseImpact    float64 `yaml:"diverseImpact"`
}

// NeighborWeights buckets 1-hop neighborhood taint.
type NeighborWeights struct {
	SanctionedHighRatio  float64 `yaml:"sanctionedHighRatio"`
	SanctionedHighImpact float64 `yaml:"sanctionedHighImpact"`
	SanctionedAnyImpact  float64 `yaml:"sanctionedAnyImpact"`
	HighRiskHighRatio    float64 `yaml:"highRiskHighRatio"`
	HighRiskHighImpact   float64 `yaml:"highRiskHighImpact"`
	HighRiskLowRatio     float64 `yaml:"highRiskLowRatio"`
	HighRiskLowImpact    float64 `yaml:"highRiskLowImpact"`
	CrowdedMinCount      int     `yaml:"crowdedMinCount"`
	CrowdedImpact        float64 `yaml:"crowdedImpact"`
}

// DormancyWeights covers long-idle accounts and sudden resurrections.
type DormancyWeights struct {
	DormantImpact     float64 `yaml:"dormantImpact"`
	ResurrectedImpact float64 `yaml:"resurrectedImpact"`
}

// ListWeights covers direct membership of the subject itself on a
// curated list. Sanction membership additionally triggers the hard
// override in OverrideWeights.
type ListWeights struct {
	SanctionedImpact  float64 `yaml:"sanctionedImpact"`
	MixerImpact       float64 `yaml:"mixerImpact"`
	ScamClusterImpact float64 `yaml:"scamClusterImpact"`
	ComboExtraImpact  float64 `yaml:"comboExtraImpact"`
}

// OverrideWeights are the non-negotiable floors applied after the
// weighted sum. SanctionedScore is an exact pin, not a floor.
type OverrideWeights struct {
	SanctionedScore float64 `yaml:"sanctionedScore"`
	ComboFloor      float64 `yaml:"comboFloor"`
	SingleFloor     float64 `yaml:"singleFloor"`
}

// DefaultWeights returns the built-in weight table. These values are
// the calibration baseline; deployments override them with a YAML file
// via LoadFile.
func DefaultWeights() *WeightTable {
	return &WeightTable{
		Version: "2026.08-default",
		Base:    15,
		Age: AgeWeights{
			BrandNewDays:      7,
			BrandNewImpact:    18,
			YoungDays:         180,
			YoungImpact:       10,
			MaturingDays:      730,
			MaturingImpact:    4,
			EstablishedImpact: -8,
		},
		Velocity: VelocityWeights{
			ExtremeTxPerDay:  50,
			ExtremeBurst:     0.9,
			ExtremeImpact:    22,
			ElevatedTxPerDay: 20,
			ElevatedBurst:    0.7,
			ElevatedImpact:   14,
			ActiveTxPerDay:   5,
			ActiveImpact:     6,
		},
		Concentration: ConcentrationWeights{
			NarrowMaxUnique:  3,
			NarrowMinShare:   0.8,
			NarrowImpact:     12,
			SkewedMinShare:   0.6,
			SkewedImpact:     7,
			DiverseMinUnique: 25,
			DiverseMaxShare:  0.3,
			DiverseImpact:    -5,
		},
		Neighbors: NeighborWeights{
			SanctionedHighRatio:  0.2,
			SanctionedHighImpact: 25,
			SanctionedAnyImpact:  15,
			HighRiskHighRatio:    0.3,
			HighRiskHighImpact:   12,
			HighRiskLowRatio:     0.1,
			HighRiskLowImpact:    6,
			CrowdedMinCount:      150,
			CrowdedImpact:        2,
		},
		Dormancy: DormancyWeights{
			DormantImpact:     9,
			ResurrectedImpact: 11,
		},
		Lists: ListWeights{
			SanctionedImpact:  60,
			MixerImpact:       25,
			ScamClusterImpact: 20,
			ComboExtraImpact:  10,
		},
		Overrides: OverrideWeights{
			SanctionedScore: 100,
			ComboFloor:      90,
			SingleFloor:     80,
		},
	}
}

// LoadFile reads a weight table from a YAML file. Fields absent from
// the file fall back to DefaultWeights values, so partial override
// files are fine.
func LoadFile(path string) (*WeightTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weight table: %w", err)
	}
	w := DefaultWeights()
	if err := yaml.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("parse weight table %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("weight table %s: %w", path, err)
	}
	return w, nil
}

// Validate rejects tables that would break the score contract.
func (w *WeightTable) Validate() error {
	if w.Base < 0 || w.Base > 100 {
		return fmt.Errorf("base score %g out of [0,100]", w.Base)
	}
	if w.Overrides.SanctionedScore != 100 {
		return fmt.Errorf("sanctionedScore must be 100, got %g", w.Overrides.SanctionedScore)
	}
	if w.Overrides.ComboFloor < w.Overrides.SingleFloor {
		return fmt.Errorf("comboFloor %g below singleFloor %g",
			w.Overrides.ComboFloor, w.Overrides.SingleFloor)
	}
	if w.Overrides.ComboFloor > 100 || w.Overrides.SingleFloor < 0 {
		return fmt.Errorf("override floors out of [0,100]")
	}
	if w.Age.BrandNewDays >= w.Age.YoungDays || w.Age.YoungDays >= w.Age.MaturingDays {
		return fmt.Errorf("age buckets must be strictly increasing")
	}
	return nil
}
