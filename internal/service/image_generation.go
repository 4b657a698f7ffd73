package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/basel-ax/imagestudio/internal/infrastructure/imagedata"
	"github.com/basel-ax/imagestudio/internal/notify"
	"github.com/rs/zerolog"
)

// Gateway is the transport the services talk to. *backend.Client implements it.
type Gateway interface {
	Post(ctx context.Context, path string, body backend.Body) (*backend.Response, error)
	Get(ctx context.Context, path string) (*backend.Response, error)
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Gateway    Gateway
	Notifier   notify.Notifier
	Translator *notify.Translator
	Logger     *zerolog.Logger
}

func (d Deps) notifier() notify.Notifier {
	if d.Notifier == nil {
		return notify.NotifierFunc(func(notify.Kind, string, string) {})
	}
	return d.Notifier
}

func (d Deps) translator() *notify.Translator {
	if d.Translator == nil {
		return notify.NewTranslator("en")
	}
	return d.Translator
}

func (d Deps) logger(component string) zerolog.Logger {
	l := zerolog.Nop()
	if d.Logger != nil {
		l = *d.Logger
	}
	return l.With().Str("component", component).Logger()
}

type imageResponse struct {
	Image string `json:"image"`
}

// requestImage posts body to path and decodes the base64 "image" field of the reply.
func requestImage(ctx context.Context, gw Gateway, path string, body backend.Body) (domain.GenerationResult, error) {
	resp, err := gw.Post(ctx, path, body)
	if err != nil {
		return domain.GenerationResult{}, err
	}

	var out imageResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return domain.GenerationResult{}, err
	}
	if strings.TrimSpace(out.Image) == "" {
		return domain.GenerationResult{}, &backend.Error{
			Kind:       backend.KindApplication,
			StatusCode: resp.StatusCode,
			Message:    "response did not include an image",
		}
	}

	data, err := imagedata.DecodePayload(out.Image)
	if err != nil {
		return domain.GenerationResult{}, &backend.Error{
			Kind:       backend.KindApplication,
			StatusCode: resp.StatusCode,
			Message:    err.Error(),
			Err:        err,
		}
	}
	return domain.GenerationResult{ImageBytes: data}, nil
}

// failureMessage returns the user-facing text for err, falling back to a generic message.
func failureMessage(err error, tr *notify.Translator) string {
	if err != nil {
		var gwErr *backend.Error
		if errors.As(err, &gwErr) && strings.TrimSpace(gwErr.Message) != "" {
			return gwErr.Message
		}
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			return msg
		}
	}
	return tr.T(notify.MsgUnknownError)
}

// lifecycle tracks the outcome and loading flag of one flow. Submissions are
// numbered; only the most recently issued one may update displayed state.
type lifecycle struct {
	mu      sync.Mutex
	seq     uint64
	loading bool
	outcome domain.Outcome
	shown   *domain.GenerationResult
}

func (l *lifecycle) begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.loading = true
	l.outcome = domain.Pending()
	return l.seq
}

// finish records o if seq is still the latest submission and reports whether it did.
func (l *lifecycle) finish(seq uint64, o domain.Outcome) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq != l.seq {
		return false
	}
	l.loading = false
	l.outcome = o
	if o.IsSuccess() {
		l.shown = o.Result
	}
	return true
}

func (l *lifecycle) snapshot() (domain.Outcome, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcome, l.loading
}

func (l *lifecycle) image() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shown == nil {
		return "", false
	}
	return l.shown.DataURL(), true
}
