package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/basel-ax/imagestudio/internal/infrastructure/imagedata"
	"github.com/basel-ax/imagestudio/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageToImageRequiresSource(t *testing.T) {
	gw := &fakeGateway{}
	deps, rec := newDeps(gw)
	flow := NewImageToImageFlow(deps)

	outcome := flow.Convert(context.Background())

	assert.True(t, outcome.IsFailure())
	assert.Equal(t, notify.MsgUploadFirst, outcome.Message)
	assert.Empty(t, gw.Calls())
	assert.False(t, flow.Loading())
	assert.Equal(t, domain.OutcomeIdle, flow.Outcome().State)
	assert.Equal(t, []notify.Notification{{Kind: notify.KindWarning, Title: notify.MsgUploadFirst}}, rec.All())

	outcome = flow.Submit(context.Background(), domain.ConversionRequest{Prompt: "x", Strength: 0.5})
	assert.True(t, outcome.IsFailure())
	assert.Empty(t, gw.Calls())
	assert.Len(t, rec.All(), 2)
}

func TestImageToImageLocalizedWarning(t *testing.T) {
	rec := &notify.Recorder{}
	flow := NewImageToImageFlow(Deps{Gateway: &fakeGateway{}, Notifier: rec, Translator: notify.NewTranslator("zh")})

	flow.Convert(context.Background())
	require.Len(t, rec.All(), 1)
	assert.Equal(t, "请先上传图像", rec.All()[0].Title)
}

func TestImageToImageConvertSendsMultipart(t *testing.T) {
	source := testPNG(t)
	gw := &fakeGateway{handler: respond(`{"image":"YmFy"}`)}
	deps, rec := newDeps(gw)
	flow := NewImageToImageFlow(deps)
	flow.SetPrompt("make it blue")

	dataURL, err := flow.LoadImage(context.Background(), bytes.NewReader(source))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))
	assert.Equal(t, imagedata.Info{Format: "png", Width: 3, Height: 2}, flow.InputInfo())

	outcome := flow.Convert(context.Background())
	require.True(t, outcome.IsSuccess())
	assert.Equal(t, []byte("bar"), outcome.Result.ImageBytes)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, backend.PathImageToImage, calls[0].path)

	parts := multipartParts(t, calls[0].body)
	require.Len(t, parts, 3)
	assert.Equal(t, "image.png", parts["file"].filename)
	assert.Equal(t, "image/png", parts["file"].contentType)
	assert.True(t, bytes.Equal(source, parts["file"].data))
	assert.Equal(t, "make it blue", string(parts["prompt"].data))
	assert.Equal(t, "0.75", string(parts["strength"].data))

	out, ok := flow.OutputImage()
	require.True(t, ok)
	assert.Equal(t, "data:image/png;base64,YmFy", out)
	in, ok := flow.InputImage()
	require.True(t, ok)
	assert.Equal(t, dataURL, in)
	assert.False(t, flow.Loading())
	assert.Equal(t, []notify.Notification{{Kind: notify.KindSuccess, Title: notify.MsgConvertSucceeded}}, rec.All())
}

func TestImageToImageStrengthBoundaries(t *testing.T) {
	for strength, want := range map[float64]string{0: "0", 1: "1", 0.33: "0.33"} {
		gw := &fakeGateway{handler: respond(`{"image":"YmFy"}`)}
		deps, _ := newDeps(gw)
		flow := NewImageToImageFlow(deps)

		outcome := flow.Submit(context.Background(), domain.ConversionRequest{Prompt: "p", Strength: strength, SourceImage: []byte{1, 2, 3}})
		require.True(t, outcome.IsSuccess())
		assert.Equal(t, want, string(multipartParts(t, gw.Calls()[0].body)["strength"].data))
	}
}

func TestImageToImageFailureKeepsImages(t *testing.T) {
	gw := &fakeGateway{handler: respond(`{"image":"YmFy"}`)}
	deps, rec := newDeps(gw)
	flow := NewImageToImageFlow(deps)

	_, err := flow.LoadImage(context.Background(), bytes.NewReader(testPNG(t)))
	require.NoError(t, err)
	require.True(t, flow.Convert(context.Background()).IsSuccess())

	gw.mu.Lock()
	gw.handler = fail(&backend.Error{Kind: backend.KindTransport, Message: "failed to send request: connection refused"})
	gw.mu.Unlock()

	outcome := flow.Convert(context.Background())
	require.True(t, outcome.IsFailure())
	assert.Equal(t, "failed to send request: connection refused", outcome.Message)
	assert.False(t, flow.Loading())

	_, hasInput := flow.InputImage()
	assert.True(t, hasInput)
	out, hasOutput := flow.OutputImage()
	assert.True(t, hasOutput)
	assert.Equal(t, "data:image/png;base64,YmFy", out)

	all := rec.All()
	require.Len(t, all, 2)
	assert.Equal(t, notify.Notification{Kind: notify.KindError, Title: notify.MsgConvertFailed, Message: outcome.Message}, all[1])
}

func TestImageToImageLoadAcceptsAnyFile(t *testing.T) {
	deps, _ := newDeps(&fakeGateway{})
	flow := NewImageToImageFlow(deps)

	dataURL, err := flow.LoadImage(context.Background(), strings.NewReader("not an image"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:text/plain;base64,"))

	req, err := flow.Request()
	require.NoError(t, err)
	assert.Equal(t, []byte("not an image"), req.SourceImage)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestImageToImageLoadErrors(t *testing.T) {
	deps, _ := newDeps(&fakeGateway{})
	flow := NewImageToImageFlow(deps)

	_, err := flow.LoadImage(context.Background(), failingReader{})
	assert.ErrorContains(t, err, "disk gone")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked, w := io.Pipe()
	defer w.Close()
	_, err = flow.LoadImage(ctx, blocked)
	assert.ErrorIs(t, err, context.Canceled)

	_, has := flow.InputImage()
	assert.False(t, has)
}
