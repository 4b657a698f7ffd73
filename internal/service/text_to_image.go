package service

import (
	"context"
	"sync"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/basel-ax/imagestudio/internal/notify"
	"github.com/rs/zerolog"
)

// TextToImageForm is the raw input state of the text-to-image flow
type TextToImageForm struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
}

type textToImagePayload struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

// TextToImageFlow submits prompts to the text-to-image endpoint and holds the displayed result.
type TextToImageFlow struct {
	gateway  Gateway
	notifier notify.Notifier
	tr       *notify.Translator
	logger   zerolog.Logger

	mu   sync.Mutex
	form TextToImageForm

	state lifecycle
}

// NewTextToImageFlow creates a flow with the form at its default values
func NewTextToImageFlow(deps Deps) *TextToImageFlow {
	return &TextToImageFlow{
		gateway:  deps.Gateway,
		notifier: deps.notifier(),
		tr:       deps.translator(),
		logger:   deps.logger("text-to-image"),
		form: TextToImageForm{
			Steps:         domain.DefaultSteps,
			GuidanceScale: domain.DefaultGuidanceScale,
		},
	}
}

func (f *TextToImageFlow) SetPrompt(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Prompt = prompt
}

func (f *TextToImageFlow) SetNegativePrompt(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.NegativePrompt = prompt
}

// SetSteps stores steps clamped to [1, 100].
func (f *TextToImageFlow) SetSteps(steps int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Steps = domain.ClampSteps(steps)
}

// SetGuidanceScale stores scale clamped to [1, 20].
func (f *TextToImageFlow) SetGuidanceScale(scale float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.GuidanceScale = domain.ClampGuidanceScale(scale)
}

func (f *TextToImageFlow) Form() TextToImageForm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Request builds a fresh request from the current form.
func (f *TextToImageFlow) Request() domain.GenerationRequest {
	form := f.Form()
	return domain.GenerationRequest{
		Prompt:         form.Prompt,
		NegativePrompt: form.NegativePrompt,
		Steps:          form.Steps,
		GuidanceScale:  form.GuidanceScale,
	}
}

// Generate submits the current form.
func (f *TextToImageFlow) Generate(ctx context.Context) domain.Outcome {
	return f.Submit(ctx, f.Request())
}

// Submit sends one generation request and fires exactly one notification.
// The loading flag is cleared on every exit path.
func (f *TextToImageFlow) Submit(ctx context.Context, req domain.GenerationRequest) (outcome domain.Outcome) {
	seq := f.state.begin()
	outcome = domain.Failed(f.tr.T(notify.MsgUnknownError))
	defer func() {
		if !f.state.finish(seq, outcome) {
			f.logger.Debug().Uint64("seq", seq).Msg("discarding stale response")
		}
	}()

	payload := textToImagePayload{
		Prompt:            req.Prompt,
		NegativePrompt:    req.NegativePrompt,
		NumInferenceSteps: req.Steps,
		GuidanceScale:     req.GuidanceScale,
	}

	f.logger.Debug().Uint64("seq", seq).Int("steps", req.Steps).Float64("guidance_scale", req.GuidanceScale).Msg("submitting generation")

	result, err := requestImage(ctx, f.gateway, backend.PathTextToImage, backend.JSONBody{Value: payload})
	if err != nil {
		msg := failureMessage(err, f.tr)
		outcome = domain.Failed(msg)
		f.logger.Warn().Err(err).Uint64("seq", seq).Msg("generation failed")
		f.notifier.Notify(notify.KindError, f.tr.T(notify.MsgGenerateFailed), msg)
		return outcome
	}

	outcome = domain.Succeeded(result)
	f.logger.Info().Uint64("seq", seq).Int("bytes", len(result.ImageBytes)).Msg("generation succeeded")
	f.notifier.Notify(notify.KindSuccess, f.tr.T(notify.MsgGenerateSucceeded), "")
	return outcome
}

// Outcome returns the state of the latest submission.
func (f *TextToImageFlow) Outcome() domain.Outcome {
	o, _ := f.state.snapshot()
	return o
}

func (f *TextToImageFlow) Loading() bool {
	_, loading := f.state.snapshot()
	return loading
}

// Image returns the displayed image as a data URL, if any generation has succeeded.
func (f *TextToImageFlow) Image() (string, bool) {
	return f.state.image()
}
