// Package decision turns a classifier distribution into a tiered, ranked outcome.
package decision

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Tier is the coarse confidence bucket of the top prediction.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// ErrInvalidDistribution means the classifier produced something that is not a distribution over the labels.
var ErrInvalidDistribution = errors.New("invalid probability distribution")

// Thresholds gate tiers, memory rotation and second-best suggestions.
type Thresholds struct {
	High       float64 `json:"high"`
	Medium     float64 `json:"medium"`
	Memory     float64 `json:"memory"`
	SecondBest float64 `json:"second_best"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.7, Medium: 0.4, Memory: 0.55, SecondBest: 0.3}
}

func (t Thresholds) Validate() error {
	if !(t.Medium > 0 && t.Medium < t.High && t.High <= 1) {
		return fmt.Errorf("need 0 < medium < high <= 1, got medium=%v high=%v", t.Medium, t.High)
	}
	if t.Memory < 0 || t.Memory > 1 {
		return fmt.Errorf("memory threshold %v outside [0,1]", t.Memory)
	}
	if t.SecondBest < 0 || t.SecondBest > 1 {
		return fmt.Errorf("second_best threshold %v outside [0,1]", t.SecondBest)
	}
	return nil
}

// TierFor buckets a confidence value.
func (t Thresholds) TierFor(confidence float64) Tier {
	switch {
	case confidence >= t.High:
		return TierHigh
	case confidence >= t.Medium:
		return TierMedium
	}
	return TierLow
}

// Candidate is one label with its probability.
type Candidate struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

type Decision struct {
	TopTag           string
	TopConfidence    float64
	SecondTag        string
	SecondConfidence float64
	Tier             Tier
	// Ranked holds every label, most probable first.
	Ranked []Candidate
}

// Decide ranks dist against labels. Equal probabilities keep label order, so a tie at the
// maximum resolves to the lowest index.
func Decide(dist []float64, labels []string, th Thresholds) (Decision, error) {
	if len(dist) == 0 {
		return Decision{}, fmt.Errorf("%w: empty", ErrInvalidDistribution)
	}
	if len(dist) != len(labels) {
		return Decision{}, fmt.Errorf("%w: %d values for %d labels", ErrInvalidDistribution, len(dist), len(labels))
	}

	ranked := make([]Candidate, len(dist))
	for i, p := range dist {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return Decision{}, fmt.Errorf("%w: value %v at %d (%s)", ErrInvalidDistribution, p, i, labels[i])
		}
		ranked[i] = Candidate{Tag: labels[i], Confidence: p}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	d := Decision{
		TopTag:        ranked[0].Tag,
		TopConfidence: ranked[0].Confidence,
		Tier:          th.TierFor(ranked[0].Confidence),
		Ranked:        ranked,
	}
	if len(ranked) > 1 {
		d.SecondTag = ranked[1].Tag
		d.SecondConfidence = ranked[1].Confidence
	}
	return d, nil
}
