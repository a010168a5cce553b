package policy

// Readiness weights.
const (
	WeightPlot         = 0.30
	WeightCharacter    = 0.25
	WeightRelationship = 0.25
	WeightWorld        = 0.20
)

// ReadinessScores are completion sub-scores on a 0-100 scale.
type ReadinessScores struct {
	Plot         float64 `json:"plot"`
	Character    float64 `json:"character"`
	Relationship float64 `json:"relationship"`
	World        float64 `json:"world"`
}

// Composite is the weighted readiness score. It is the authoritative
// completion signal.
func (r ReadinessScores) Composite() float64 {
	return WeightPlot*clamp(r.Plot) +
		WeightCharacter*clamp(r.Character) +
		WeightRelationship*clamp(r.Relationship) +
		WeightWorld*clamp(r.World)
}

// IsReady reports whether the composite meets threshold.
func (r ReadinessScores) IsReady(threshold float64) bool {
	return r.Composite() >= threshold-epsilon
}

// epsilon absorbs float error in the weighted sum.
const epsilon = 1e-9

// PassesPrefilter reports whether a Work is far enough along to be worth
// scoring. It never marks a Work ready on its own.
func PassesPrefilter(units, planned int, ratio float64) bool {
	if planned <= 0 {
		return false
	}
	return float64(units)/float64(planned) >= ratio
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
