package mlclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Classification status values. Anything other than StatusOK means the
// classifier was not consulted and the result is a SafeSentinel.
const (
	StatusOK          = "ok"
	StatusDisabled    = "disabled"
	StatusTimeout     = "timeout"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
)

// Classification is the ML classifier's verdict on a body of Move source.
type Classification struct {
	Label          string             `json:"classification"`
	Probabilities  map[string]float64 `json:"probabilities"`
	MaxProbability float64            `json:"max_probability"`
	Confidence     float64            `json:"confidence"`
	RiskScore      int                `json:"risk_score"`
	Reasoning      string             `json:"reasoning,omitempty"`
	ModelVersion   string             `json:"model_version,omitempty"`
	ProcessingTime float64            `json:"processing_time"`
	Status         string             `json:"status"`
	Error          string             `json:"error,omitempty"`
}

// IsFallback reports whether c is a sentinel rather than a real result.
func (c *Classification) IsFallback() bool {
	return c == nil || c.Status != StatusOK
}

// SafeSentinel is returned when the classifier could not be consulted. It is
// indistinguishable from a real "safe" verdict except for Status and Error.
func SafeSentinel(status string, err error) *Classification {
	probs := make(map[string]float64, len(Labels))
	for _, l := range Labels {
		probs[l] = 0
	}
	probs[LabelSafe] = 1

	msg := status
	if err != nil {
		msg = err.Error()
	}
	return &Classification{
		Label:          LabelSafe,
		Probabilities:  probs,
		MaxProbability: 1,
		Confidence:     0,
		RiskScore:      0,
		Status:         status,
		Error:          msg,
	}
}

// StatusFor maps a Classify error to a sentinel status.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrDisabled):
		return StatusDisabled
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrCircuitOpen):
		return StatusUnavailable
	default:
		return StatusError
	}
}

// wireResponse is the ML service's response body. Extra fields are ignored.
type wireResponse struct {
	Classification *string            `json:"classification"`
	Probabilities  map[string]float64 `json:"probabilities"`
	MaxProbability *float64           `json:"max_probability"`
	Confidence     *float64           `json:"confidence"`
	Reasoning      string             `json:"reasoning"`
	ModelVersion   string             `json:"model_version"`
	ProcessingTime float64            `json:"processing_time"`
}

// decode validates a service response and returns a Classification whose
// RiskScore is recomputed locally from the probabilities.
func decode(body []byte) (*Classification, error) {
	var w wireResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if w.Classification == nil || *w.Classification == "" {
		return nil, fmt.Errorf("%w: missing classification", ErrInvalidResponse)
	}
	label := *w.Classification
	if !ValidLabel(label) {
		return nil, fmt.Errorf("%w: unknown label %q", ErrInvalidResponse, label)
	}

	probs := make(map[string]float64, len(w.Probabilities))
	for l, p := range w.Probabilities {
		if p < 0 {
			return nil, fmt.Errorf("%w: negative probability for %q", ErrInvalidResponse, l)
		}
		probs[l] = p
	}

	maxProb := probs[label]
	if w.MaxProbability != nil {
		maxProb = *w.MaxProbability
	}
	if maxProb < 0 || maxProb > 1 {
		return nil, fmt.Errorf("%w: max_probability %v out of range", ErrInvalidResponse, maxProb)
	}

	confidence := maxProb
	if w.Confidence != nil {
		confidence = *w.Confidence
	}

	return &Classification{
		Label:          label,
		Probabilities:  probs,
		MaxProbability: maxProb,
		Confidence:     confidence,
		RiskScore:      RiskScoreFromProbabilities(label, probs, maxProb),
		Reasoning:      w.Reasoning,
		ModelVersion:   w.ModelVersion,
		ProcessingTime: w.ProcessingTime,
		Status:         StatusOK,
	}, nil
}
