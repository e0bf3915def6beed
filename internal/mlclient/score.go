package mlclient

import "math"

// Classifier labels.
const (
	LabelAccessControl        = "access_control"
	LabelLogicError           = "logic_error"
	LabelRandomnessError      = "randomness_error"
	LabelCapabilityLeak       = "capability_leak"
	LabelArithmeticOverflow   = "arithmetic_overflow"
	LabelCrossModulePollution = "cross_module_pollution"
	LabelResourceLeak         = "resource_leak"
	LabelUncheckedReturn      = "unchecked_return"
	LabelSafe                 = "safe"
)

// Labels is the closed label set, in a stable order.
var Labels = []string{
	LabelAccessControl,
	LabelLogicError,
	LabelRandomnessError,
	LabelCapabilityLeak,
	LabelArithmeticOverflow,
	LabelCrossModulePollution,
	LabelResourceLeak,
	LabelUncheckedReturn,
	LabelSafe,
}

// Band is an inclusive 0-100 score range.
type Band struct {
	Min float64
	Max float64
}

func (b Band) Midpoint() float64 { return (b.Min + b.Max) / 2 }

// Severity tiers. Labels in the same tier share a band; tiers never overlap.
var (
	criticalBand = Band{Min: 80, Max: 95}
	highBand     = Band{Min: 60, Max: 79}
	mediumBand   = Band{Min: 40, Max: 59}
	safeBand     = Band{Min: 0, Max: 19}
)

// ScoreBands maps every label to its score band.
var ScoreBands = map[string]Band{
	LabelCapabilityLeak:       criticalBand,
	LabelArithmeticOverflow:   criticalBand,
	LabelCrossModulePollution: criticalBand,
	LabelUncheckedReturn:      criticalBand,
	LabelResourceLeak:         criticalBand,
	LabelAccessControl:        criticalBand,
	LabelLogicError:           highBand,
	LabelRandomnessError:      mediumBand,
	LabelSafe:                 safeBand,
}

// ValidLabel reports whether label is in the closed set.
func ValidLabel(label string) bool {
	_, ok := ScoreBands[label]
	return ok
}

func confidenceMultiplier(p float64) float64 {
	switch {
	case p >= 0.8:
		return 1.0
	case p >= 0.6:
		return 0.8
	case p >= 0.4:
		return 0.6
	default:
		return 0.3
	}
}

// RiskScoreFromProbabilities converts a classification into a 0-100 score.
//
// The label's band is interpolated by maxProb and scaled by a confidence
// multiplier; the result is then blended 0.7/0.3 with the probability
// weighted midpoints of every non-safe band. Unknown labels score in the
// safe band.
func RiskScoreFromProbabilities(label string, probs map[string]float64, maxProb float64) int {
	band, ok := ScoreBands[label]
	if !ok {
		band = safeBand
	}
	maxProb = clamp(maxProb, 0, 1)

	base := band.Min + (band.Max-band.Min)*maxProb
	adjusted := base * confidenceMultiplier(maxProb)

	var smoothing float64
	for _, l := range Labels {
		if l == LabelSafe {
			continue
		}
		if p := probs[l]; p > 0 {
			smoothing += p * ScoreBands[l].Midpoint()
		}
	}

	final := 0.7*adjusted + 0.3*smoothing
	return int(math.Round(clamp(final, 0, 100)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
