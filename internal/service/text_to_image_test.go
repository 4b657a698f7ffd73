package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/basel-ax/imagestudio/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextToImageSubmitSuccess(t *testing.T) {
	gw := &fakeGateway{handler: respond(`{"image":"Zm9v"}`)}
	deps, rec := newDeps(gw)
	flow := NewTextToImageFlow(deps)

	outcome := flow.Submit(context.Background(), domain.GenerationRequest{
		Prompt:         "a cat",
		NegativePrompt: "",
		Steps:          50,
		GuidanceScale:  7.5,
	})

	require.True(t, outcome.IsSuccess())
	assert.Equal(t, []byte("foo"), outcome.Result.ImageBytes)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, backend.PathTextToImage, calls[0].path)
	assert.Equal(t, map[string]any{
		"prompt":              "a cat",
		"negative_prompt":     "",
		"num_inference_steps": json.Number("50"),
		"guidance_scale":      json.Number("7.5"),
	}, jsonFields(t, calls[0].body))

	img, ok := flow.Image()
	require.True(t, ok)
	assert.Equal(t, "data:image/png;base64,Zm9v", img)
	assert.False(t, flow.Loading())
	assert.True(t, flow.Outcome().IsSuccess())
	assert.Equal(t, []notify.Notification{{Kind: notify.KindSuccess, Title: notify.MsgGenerateSucceeded}}, rec.All())
}

func TestTextToImageForwardsBoundaries(t *testing.T) {
	tests := []struct {
		steps    int
		guidance float64
		want     [2]string
	}{
		{1, 1, [2]string{"1", "1"}},
		{100, 20, [2]string{"100", "20"}},
	}
	for _, tc := range tests {
		gw := &fakeGateway{handler: respond(`{"image":"Zm9v"}`)}
		deps, _ := newDeps(gw)
		flow := NewTextToImageFlow(deps)

		outcome := flow.Submit(context.Background(), domain.GenerationRequest{Prompt: "p", Steps: tc.steps, GuidanceScale: tc.guidance})
		require.True(t, outcome.IsSuccess())

		fields := jsonFields(t, gw.Calls()[0].body)
		assert.Equal(t, json.Number(tc.want[0]), fields["num_inference_steps"])
		assert.Equal(t, json.Number(tc.want[1]), fields["guidance_scale"])
	}
}

func TestTextToImageFailureKeepsForm(t *testing.T) {
	gwErr := &backend.Error{Kind: backend.KindApplication, StatusCode: 500, Message: "Request failed with status code 500"}
	gw := &fakeGateway{handler: fail(gwErr)}
	deps, rec := newDeps(gw)
	flow := NewTextToImageFlow(deps)
	flow.SetPrompt("a cat")
	flow.SetNegativePrompt("blurry")
	flow.SetSteps(30)
	flow.SetGuidanceScale(9)

	outcome := flow.Generate(context.Background())

	require.True(t, outcome.IsFailure())
	assert.Equal(t, "Request failed with status code 500", outcome.Message)
	assert.False(t, flow.Loading())
	assert.Equal(t, TextToImageForm{Prompt: "a cat", NegativePrompt: "blurry", Steps: 30, GuidanceScale: 9}, flow.Form())
	_, shown := flow.Image()
	assert.False(t, shown)
	assert.Equal(t, []notify.Notification{{
		Kind:    notify.KindError,
		Title:   notify.MsgGenerateFailed,
		Message: "Request failed with status code 500",
	}}, rec.All())
}

func TestTextToImageFailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		handler func(context.Context, string, backend.Body) (*backend.Response, error)
		want    string
	}{
		{"empty error", fail(errors.New("")), notify.MsgUnknownError},
		{"plain error", fail(errors.New("dial tcp: refused")), "dial tcp: refused"},
		{"malformed body", respond(`<html>`), ""},
		{"missing image", respond(`{}`), "response did not include an image"},
		{"bad base64", respond(`{"image":"%%%"}`), ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps, rec := newDeps(&fakeGateway{handler: tc.handler})
			flow := NewTextToImageFlow(deps)

			outcome := flow.Submit(context.Background(), domain.GenerationRequest{Steps: 1, GuidanceScale: 1})
			require.True(t, outcome.IsFailure())
			assert.NotEmpty(t, outcome.Message)
			if tc.want != "" {
				assert.Equal(t, tc.want, outcome.Message)
			}
			require.Len(t, rec.All(), 1)
			assert.Equal(t, notify.KindError, rec.All()[0].Kind)
			assert.False(t, flow.Loading())
		})
	}
}

func TestTextToImageRecoversAfterFailure(t *testing.T) {
	gw := &fakeGateway{handler: fail(errors.New("boom"))}
	deps, rec := newDeps(gw)
	flow := NewTextToImageFlow(deps)

	require.True(t, flow.Generate(context.Background()).IsFailure())
	require.False(t, flow.Loading())

	var sawPending bool
	gw.mu.Lock()
	gw.handler = func(ctx context.Context, path string, body backend.Body) (*backend.Response, error) {
		sawPending = flow.Loading() && flow.Outcome().IsPending()
		return respond(`{"image":"Zm9v"}`)(ctx, path, body)
	}
	gw.mu.Unlock()

	require.True(t, flow.Generate(context.Background()).IsSuccess())
	assert.True(t, sawPending)
	assert.False(t, flow.Loading())
	assert.Len(t, rec.All(), 2)
}

func TestTextToImageClearsLoadingOnPanic(t *testing.T) {
	gw := &fakeGateway{handler: func(context.Context, string, backend.Body) (*backend.Response, error) {
		panic("transport exploded")
	}}
	deps, _ := newDeps(gw)
	flow := NewTextToImageFlow(deps)

	assert.Panics(t, func() { flow.Generate(context.Background()) })
	assert.False(t, flow.Loading())
	assert.True(t, flow.Outcome().IsFailure())
}

func TestTextToImageSettersClamp(t *testing.T) {
	deps, _ := newDeps(&fakeGateway{})
	flow := NewTextToImageFlow(deps)
	assert.Equal(t, TextToImageForm{Steps: 50, GuidanceScale: 7.5}, flow.Form())

	flow.SetSteps(0)
	flow.SetGuidanceScale(50)
	assert.Equal(t, 1, flow.Form().Steps)
	assert.Equal(t, 20.0, flow.Form().GuidanceScale)
}

func TestTextToImageLatestSubmissionWins(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	gw := &fakeGateway{handler: func(ctx context.Context, path string, body backend.Body) (*backend.Response, error) {
		if jsonFields(t, body)["prompt"] == "slow" {
			close(entered)
			<-release
			return &backend.Response{StatusCode: 200, Body: []byte(`{"image":"c2xvdw=="}`)}, nil
		}
		return &backend.Response{StatusCode: 200, Body: []byte(`{"image":"ZmFzdA=="}`)}, nil
	}}
	deps, rec := newDeps(gw)
	flow := NewTextToImageFlow(deps)

	slow := make(chan domain.Outcome, 1)
	go func() {
		slow <- flow.Submit(context.Background(), domain.GenerationRequest{Prompt: "slow", Steps: 1, GuidanceScale: 1})
	}()
	<-entered

	fast := flow.Submit(context.Background(), domain.GenerationRequest{Prompt: "fast", Steps: 1, GuidanceScale: 1})
	require.True(t, fast.IsSuccess())
	assert.False(t, flow.Loading())

	close(release)
	stale := <-slow
	require.True(t, stale.IsSuccess())
	assert.Equal(t, []byte("slow"), stale.Result.ImageBytes)

	img, _ := flow.Image()
	assert.Equal(t, "data:image/png;base64,ZmFzdA==", img)
	assert.Equal(t, []byte("fast"), flow.Outcome().Result.ImageBytes)
	assert.Len(t, rec.All(), 2)
}
