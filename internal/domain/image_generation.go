package domain

import (
	"encoding/base64"
	"errors"
)

// Parameter ranges enforced by the input forms.
const (
	MinSteps         = 1
	MaxSteps         = 100
	MinGuidanceScale = 1.0
	MaxGuidanceScale = 20.0
	MinStrength      = 0.0
	MaxStrength      = 1.0

	DefaultSteps         = 50
	DefaultGuidanceScale = 7.5
	DefaultStrength      = 0.75
)

// ErrNoSourceImage is returned when a conversion is attempted before an image was loaded.
var ErrNoSourceImage = errors.New("no source image loaded")

// GenerationRequest represents the parameters for a text-to-image request
type GenerationRequest struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
}

// ConversionRequest represents the parameters for an image-to-image request
type ConversionRequest struct {
	Prompt      string
	Strength    float64
	SourceImage []byte
}

// GenerationResult holds the decoded image returned by either flow
type GenerationResult struct {
	ImageBytes []byte
}

// DataURL renders the result as a PNG data URL suitable for an image element.
func (r GenerationResult) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(r.ImageBytes)
}

// OutcomeState enumerates the lifecycle of a single submission.
type OutcomeState int

const (
	OutcomeIdle OutcomeState = iota
	OutcomePending
	OutcomeSuccess
	OutcomeFailure
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "idle"
	}
}

// Outcome is the result of a flow's most recent submission.
// Result is set only on success, Message only on failure.
type Outcome struct {
	State   OutcomeState
	Result  *GenerationResult
	Message string
}

func Pending() Outcome {
	return Outcome{State: OutcomePending}
}

func Succeeded(result GenerationResult) Outcome {
	return Outcome{State: OutcomeSuccess, Result: &result}
}

func Failed(message string) Outcome {
	return Outcome{State: OutcomeFailure, Message: message}
}

func (o Outcome) IsPending() bool { return o.State == OutcomePending }
func (o Outcome) IsSuccess() bool { return o.State == OutcomeSuccess }
func (o Outcome) IsFailure() bool { return o.State == OutcomeFailure }

// ClampSteps bounds steps to the accepted inference step range
func ClampSteps(steps int) int {
	if steps < MinSteps {
		return MinSteps
	}
	if steps > MaxSteps {
		return MaxSteps
	}
	return steps
}

// ClampGuidanceScale bounds the guidance scale to its accepted range
func ClampGuidanceScale(scale float64) float64 {
	return clampFloat(scale, MinGuidanceScale, MaxGuidanceScale)
}

// ClampStrength bounds the conversion strength to [0, 1]
func ClampStrength(strength float64) float64 {
	return clampFloat(strength, MinStrength, MaxStrength)
}

func clampFloat(v, lo, hi float64) float64 {
	// NaN compares false everywhere; treat it as the lower bound.
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
