package stubbackend

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/imagedata"
)

type textToImageBody struct {
	Prompt            string   `json:"prompt"`
	NegativePrompt    string   `json:"negative_prompt"`
	NumInferenceSteps *int     `json:"num_inference_steps"`
	GuidanceScale     *float64 `json:"guidance_scale"`
}

func (s *Server) handleTextToImage(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.record(r.URL.Path); ok {
		writeDetail(w, f.status, f.detail)
		return
	}

	var body textToImageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if body.NumInferenceSteps == nil || *body.NumInferenceSteps < domain.MinSteps || *body.NumInferenceSteps > domain.MaxSteps {
		writeValidation(w, "num_inference_steps", "ensure this value is between 1 and 100")
		return
	}
	if body.GuidanceScale == nil || *body.GuidanceScale < domain.MinGuidanceScale || *body.GuidanceScale > domain.MaxGuidanceScale {
		writeValidation(w, "guidance_scale", "ensure this value is between 1 and 20")
		return
	}

	data, err := s.renderPrompt(body.Prompt, body.NegativePrompt)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.remember(userFromContext(r.Context()), body.Prompt, false)
	writeJSON(w, http.StatusOK, map[string]string{"image": base64.StdEncoding.EncodeToString(data)})
}

func (s *Server) handleImageToImage(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.record(r.URL.Path); ok {
		writeDetail(w, f.status, f.detail)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid multipart body")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeValidation(w, "file", "field required")
		return
	}
	defer file.Close()

	strength, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("strength")), 64)
	if err != nil || strength < domain.MinStrength || strength > domain.MaxStrength {
		writeValidation(w, "strength", "ensure this value is between 0 and 1")
		return
	}

	source, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if _, err := imagedata.Inspect(source); err != nil {
		writeDetail(w, http.StatusBadRequest, "uploaded file is not a supported image")
		return
	}

	data, err := invert(source, strength)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	prompt := r.FormValue("prompt")
	s.remember(userFromContext(r.Context()), prompt, true)
	writeJSON(w, http.StatusOK, map[string]string{"image": base64.StdEncoding.EncodeToString(data)})
}

// renderPrompt paints a tile whose colors derive from the prompts.
func (s *Server) renderPrompt(prompt, negative string) ([]byte, error) {
	fg := promptColor(prompt)
	bg := promptColor(negative)

	img := image.NewRGBA(image.Rect(0, 0, s.tile, s.tile))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	inset := s.tile / 4
	draw.Draw(img, image.Rect(inset, inset, s.tile-inset, s.tile-inset), &image.Uniform{C: fg}, image.Point{}, draw.Src)

	return encodePNG(img)
}

func promptColor(prompt string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	sum := h.Sum32()
	return color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 0xff}
}

// invert blends every pixel toward its inverse by strength.
func invert(source []byte, strength float64) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(source))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBAModel.Convert(src.At(x, y)).(color.RGBA)
			out.SetRGBA(x, y, color.RGBA{
				R: blend(c.R, c.A, strength),
				G: blend(c.G, c.A, strength),
				B: blend(c.B, c.A, strength),
				A: c.A,
			})
		}
	}
	return encodePNG(out)
}

// blend works on premultiplied channels, so the inverse of v is a-v.
func blend(v, a uint8, strength float64) uint8 {
	inv := float64(a - v)
	return uint8(float64(v)*(1-strength) + inv*strength + 0.5)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
