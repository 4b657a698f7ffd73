package service

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"sync"
	"testing"

	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/basel-ax/imagestudio/internal/notify"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	path   string
	body   backend.Body
}

// fakeGateway records calls and answers them with handler.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []call
	handler func(ctx context.Context, path string, body backend.Body) (*backend.Response, error)
}

func (g *fakeGateway) Post(ctx context.Context, path string, body backend.Body) (*backend.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{method: "POST", path: path, body: body})
	h := g.handler
	g.mu.Unlock()
	return h(ctx, path, body)
}

func (g *fakeGateway) Get(ctx context.Context, path string) (*backend.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{method: "GET", path: path})
	h := g.handler
	g.mu.Unlock()
	return h(ctx, path, nil)
}

func (g *fakeGateway) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call(nil), g.calls...)
}

func respond(body string) func(context.Context, string, backend.Body) (*backend.Response, error) {
	return func(context.Context, string, backend.Body) (*backend.Response, error) {
		return &backend.Response{StatusCode: 200, Body: []byte(body)}, nil
	}
}

func fail(err error) func(context.Context, string, backend.Body) (*backend.Response, error) {
	return func(context.Context, string, backend.Body) (*backend.Response, error) {
		return nil, err
	}
}

func newDeps(gw Gateway) (Deps, *notify.Recorder) {
	rec := &notify.Recorder{}
	return Deps{Gateway: gw, Notifier: rec, Translator: notify.NewTranslator("en")}, rec
}

// jsonFields encodes body and decodes it back into a generic map.
func jsonFields(t *testing.T, body backend.Body) map[string]any {
	t.Helper()
	contentType, r, err := body.Encode()
	require.NoError(t, err)
	require.Equal(t, "application/json", contentType)

	var out map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	require.NoError(t, dec.Decode(&out))
	return out
}

type formPart struct {
	filename    string
	contentType string
	data        []byte
}

// multipartParts encodes body and parses every part by field name.
func multipartParts(t *testing.T, body backend.Body) map[string]formPart {
	t.Helper()
	contentType, r, err := body.Encode()
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(mediaType, "multipart/form-data"))

	parts := make(map[string]formPart)
	mr := multipart.NewReader(r, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		parts[p.FormName()] = formPart{filename: p.FileName(), contentType: p.Header.Get("Content-Type"), data: data}
	}
	return parts
}
