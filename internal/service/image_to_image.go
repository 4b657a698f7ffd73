package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/basel-ax/imagestudio/internal/infrastructure/imagedata"
	"github.com/basel-ax/imagestudio/internal/notify"
	"github.com/rs/zerolog"
)

const (
	uploadFieldName = "file"
	uploadFileName  = "image.png"
)

// ImageToImageForm is the raw input state of the image-to-image flow
type ImageToImageForm struct {
	Prompt   string
	Strength float64
}

// ImageToImageFlow converts an uploaded image. The input preview and the output
// image are held separately; conversions only ever replace the output.
type ImageToImageFlow struct {
	gateway  Gateway
	notifier notify.Notifier
	tr       *notify.Translator
	logger   zerolog.Logger

	mu        sync.Mutex
	form      ImageToImageForm
	input     string
	inputInfo imagedata.Info

	state lifecycle
}

// NewImageToImageFlow creates a flow with the form at its default values
func NewImageToImageFlow(deps Deps) *ImageToImageFlow {
	return &ImageToImageFlow{
		gateway:  deps.Gateway,
		notifier: deps.notifier(),
		tr:       deps.translator(),
		logger:   deps.logger("image-to-image"),
		form:     ImageToImageForm{Strength: domain.DefaultStrength},
	}
}

func (f *ImageToImageFlow) SetPrompt(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Prompt = prompt
}

// SetStrength stores strength clamped to [0, 1].
func (f *ImageToImageFlow) SetStrength(strength float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Strength = domain.ClampStrength(strength)
}

func (f *ImageToImageFlow) Form() ImageToImageForm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// LoadImage reads a user-selected file into a data URL and keeps it as the input preview.
// The content is not validated; the mime type is sniffed from the bytes.
func (f *ImageToImageFlow) LoadImage(ctx context.Context, file io.Reader) (string, error) {
	data, err := readAll(ctx, file)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	dataURL := imagedata.Encode("", data)
	info, err := imagedata.Inspect(data)
	if err != nil {
		f.logger.Debug().Err(err).Int("bytes", len(data)).Msg("loaded file is not a recognized image")
	} else {
		f.logger.Debug().Str("format", info.Format).Int("width", info.Width).Int("height", info.Height).Msg("image loaded")
	}

	f.mu.Lock()
	f.input = dataURL
	f.inputInfo = info
	f.mu.Unlock()
	return dataURL, nil
}

// InputImage returns the input preview data URL.
func (f *ImageToImageFlow) InputImage() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input, f.input != ""
}

// InputInfo returns the detected format and size of the input image, if recognized.
func (f *ImageToImageFlow) InputInfo() imagedata.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputInfo
}

// Request builds a conversion request from the form, re-decoding the preview into raw bytes.
func (f *ImageToImageFlow) Request() (domain.ConversionRequest, error) {
	f.mu.Lock()
	form, input := f.form, f.input
	f.mu.Unlock()

	req := domain.ConversionRequest{Prompt: form.Prompt, Strength: form.Strength}
	if input == "" {
		return req, domain.ErrNoSourceImage
	}
	_, data, err := imagedata.Decode(input)
	if err != nil {
		return req, fmt.Errorf("failed to decode input image: %w", err)
	}
	req.SourceImage = data
	return req, nil
}

// Convert submits the current form and loaded image.
func (f *ImageToImageFlow) Convert(ctx context.Context) domain.Outcome {
	req, err := f.Request()
	if err != nil {
		f.logger.Debug().Err(err).Msg("no usable source image")
	}
	return f.Submit(ctx, req)
}

// Submit sends one conversion request and fires exactly one notification.
// Without a source image it warns and never contacts the gateway.
func (f *ImageToImageFlow) Submit(ctx context.Context, req domain.ConversionRequest) (outcome domain.Outcome) {
	if len(req.SourceImage) == 0 {
		msg := f.tr.T(notify.MsgUploadFirst)
		f.notifier.Notify(notify.KindWarning, msg, "")
		return domain.Failed(msg)
	}

	seq := f.state.begin()
	outcome = domain.Failed(f.tr.T(notify.MsgUnknownError))
	defer func() {
		if !f.state.finish(seq, outcome) {
			f.logger.Debug().Uint64("seq", seq).Msg("discarding stale response")
		}
	}()

	body := backend.MultipartBody{
		Files: []backend.FormFile{{
			FieldName:   uploadFieldName,
			FileName:    uploadFileName,
			ContentType: imagedata.PNGMimeType,
			Data:        req.SourceImage,
		}},
		Fields: []backend.FormField{
			{Name: "prompt", Value: req.Prompt},
			{Name: "strength", Value: strconv.FormatFloat(req.Strength, 'f', -1, 64)},
		},
	}

	f.logger.Debug().Uint64("seq", seq).Float64("strength", req.Strength).Int("bytes", len(req.SourceImage)).Msg("submitting conversion")

	result, err := requestImage(ctx, f.gateway, backend.PathImageToImage, body)
	if err != nil {
		msg := failureMessage(err, f.tr)
		outcome = domain.Failed(msg)
		f.logger.Warn().Err(err).Uint64("seq", seq).Msg("conversion failed")
		f.notifier.Notify(notify.KindError, f.tr.T(notify.MsgConvertFailed), msg)
		return outcome
	}

	outcome = domain.Succeeded(result)
	f.logger.Info().Uint64("seq", seq).Int("bytes", len(result.ImageBytes)).Msg("conversion succeeded")
	f.notifier.Notify(notify.KindSuccess, f.tr.T(notify.MsgConvertSucceeded), "")
	return outcome
}

// Outcome returns the state of the latest submission.
func (f *ImageToImageFlow) Outcome() domain.Outcome {
	o, _ := f.state.snapshot()
	return o
}

func (f *ImageToImageFlow) Loading() bool {
	_, loading := f.state.snapshot()
	return loading
}

// OutputImage returns the latest converted image as a data URL.
func (f *ImageToImageFlow) OutputImage() (string, bool) {
	return f.state.image()
}

// readAll reads r to the end, giving up early if ctx is cancelled.
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(r)
		done <- result{data: data, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.data, res.err
	}
}
