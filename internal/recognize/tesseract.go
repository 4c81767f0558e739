package recognize

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/yxzhu/wubiq/internal/imaging"
	"github.com/yxzhu/wubiq/internal/model"
)

// Glyph cells are 9x11; Tesseract wants far more resolution than that, so
// cells are rendered scaled up with a quiet border before recognition.
const (
	classifierScale  = 8
	classifierBorder = 12
)

// Classifier recognizes glyphs with a pretrained Tesseract model, restricted
// to single digits. Stateless per call; the trained-data artifact is
// verified once at construction.
type Classifier struct {
	language      string
	clientFactory func() *gosseract.Client
}

// NewClassifier verifies the trained-data artifact and builds the
// classifier. Returns model.ErrModelUnavailable (wrapped) when the artifact
// is missing; callers fall back to the remaining recognizers.
func NewClassifier(cfg model.ClassifierConfig) (*Classifier, error) {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}

	probe := gosseract.NewClient()
	defer probe.Close()

	langs, err := probe.GetAvailableLanguages()
	if err != nil {
		return nil, fmt.Errorf("%w: list trained data: %v", model.ErrModelUnavailable, err)
	}
	found := false
	for _, l := range langs {
		if l == lang {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: trained data %q not installed", model.ErrModelUnavailable, lang)
	}

	return &Classifier{language: lang, clientFactory: gosseract.NewClient}, nil
}

func (c *Classifier) Name() string { return model.RecognizerClassifier }

// Recognize classifies each glyph cell independently in single-character
// mode with a digit whitelist. One client serves all four cells to amortize
// engine setup.
func (c *Classifier) Recognize(ctx context.Context, in Input) (model.RecognitionResult, error) {
	res := model.RecognitionResult{Recognizer: c.Name()}

	client := c.clientFactory()
	defer client.Close()

	if err := client.SetLanguage(c.language); err != nil {
		return res, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetWhitelist("0123456789"); err != nil {
		return res, fmt.Errorf("set whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_CHAR); err != nil {
		return res, fmt.Errorf("set segmentation mode: %w", err)
	}

	digits := make([]byte, 0, model.DigitCount)
	for i, g := range in.Glyphs {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		digit, conf, err := c.classifyCell(client, g)
		if err != nil {
			return res, fmt.Errorf("cell %d: %w", i, err)
		}
		digits = append(digits, digit)
		res.Confidence[i] = conf
	}
	res.Digits = string(digits)
	return res, nil
}

// classifyCell runs one glyph through the engine. A cell the engine cannot
// read becomes '?' with confidence 0.
func (c *Classifier) classifyCell(client *gosseract.Client, g imaging.Glyph) (byte, float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, g.Render(classifierScale, classifierBorder)); err != nil {
		return '?', 0, fmt.Errorf("encode cell: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return '?', 0, fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return '?', 0, fmt.Errorf("recognize: %w", err)
	}
	text = strings.TrimSpace(text)
	if len(text) == 0 || text[0] < '0' || text[0] > '9' {
		return '?', 0, nil
	}

	conf := 0.0
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_SYMBOL); err == nil && len(boxes) > 0 {
		conf = boxes[0].Confidence / 100.0
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
	}
	return text[0], conf, nil
}
