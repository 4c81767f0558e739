package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/yxzhu/wubiq/internal/model"
)

// visionScale upscales the captcha before sending it; the source bitmaps
// are small enough that models misread them at native resolution.
const visionScale = 4

// Vision recognizes the whole captcha with a remote multimodal model. It is
// an optional third voice for batch consensus and is never used by the live
// retry loop. The model reports no per-class probabilities, so every
// position carries the configured nominal confidence.
type Vision struct {
	client *openai.Client
	cfg    model.VisionConfig
}

// NewVision builds the vision recognizer. Requires an API key.
func NewVision(cfg model.VisionConfig) (*Vision, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision recognizer requires an API key")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Vision{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

func (v *Vision) Name() string { return model.RecognizerVision }

// Recognize sends the upscaled captcha and parses the model's digit reply.
func (v *Vision) Recognize(ctx context.Context, in Input) (model.RecognitionResult, error) {
	res := model.RecognitionResult{Recognizer: v.Name()}

	dataURL, err := encodeDataURL(in.Raw)
	if err != nil {
		return res, err
	}

	timeout := time.Duration(v.cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m := v.cfg.Model
	if m == "" {
		m = openai.GPT4oMini
	}

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You read small security images containing exactly four digits.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Reply with exactly the four digits shown in this image, nothing else.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		MaxTokens:   16,
		Temperature: 0,
	})
	if err != nil {
		return res, fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return res, fmt.Errorf("vision completion returned no choices")
	}

	digits := keepDigits(resp.Choices[0].Message.Content)
	if len(digits) != model.DigitCount {
		// An unreadable image is a failed guess, not an error.
		res.Digits = "????"
		return res, nil
	}

	res.Digits = digits
	for i := range res.Confidence {
		res.Confidence[i] = v.cfg.Confidence
	}
	return res, nil
}

// keepDigits strips everything but 0-9 from the model reply.
func keepDigits(s string) string {
	out := make([]byte, 0, model.DigitCount)
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// encodeDataURL re-encodes the raw captcha as an upscaled PNG data URL.
func encodeDataURL(raw []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", model.ErrMalformedImage, err)
	}

	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*visionScale, b.Dy()*visionScale))
	for y := 0; y < dst.Bounds().Dy(); y++ {
		for x := 0; x < dst.Bounds().Dx(); x++ {
			dst.Set(x, y, src.At(b.Min.X+x/visionScale, b.Min.Y+y/visionScale))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
