package recognize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yxzhu/wubiq/internal/imaging"
	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/store"
)

// Input is one captcha prepared for recognition: the raw bytes plus the
// normalized glyph cells, so every recognizer works from the same
// segmentation.
type Input struct {
	ID     string
	Raw    []byte
	Glyphs []imaging.Glyph
}

// NewInput normalizes a captcha image into a recognizer input.
func NewInput(img model.CaptchaImage) (Input, error) {
	glyphs, err := imaging.Normalize(img.Raw)
	if err != nil {
		return Input{}, err
	}
	id := "live"
	if img.Path != "" {
		id = filepath.Base(img.Path)
	}
	return Input{ID: id, Raw: img.Raw, Glyphs: glyphs}, nil
}

// Recognizer is the shared contract for all glyph recognizers. The consensus
// engine and the retry loop treat recognizer count and kind as
// configuration, never as control flow.
type Recognizer interface {
	// Name returns the recognizer identity recorded in results.
	Name() string

	// Recognize produces a best-effort 4-digit guess with per-position
	// confidence. A position with no candidate is reported as '?' with
	// confidence 0 rather than failing the whole image.
	Recognize(ctx context.Context, in Input) (model.RecognitionResult, error)
}

// New builds the configured recognizers in batch order: template matcher,
// then classifier, then the optional vision recognizer. A recognizer whose
// backing model or corpus is unavailable is skipped with a warning to stderr;
// callers must tolerate any subset, including none.
func New(cfg *model.Config, snap *store.Snapshot) []Recognizer {
	var out []Recognizer

	if snap != nil && !snap.Empty() {
		out = append(out, NewTemplateMatcher(snap))
	} else {
		fmt.Fprintln(os.Stderr, "warning: template library is empty, template matcher disabled")
	}

	if cfg.Classifier.Enabled {
		c, err := NewClassifier(cfg.Classifier)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: classifier disabled: %v\n", err)
		} else {
			out = append(out, c)
		}
	}

	if cfg.Vision.Enabled {
		v, err := NewVision(cfg.Vision)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: vision recognizer disabled: %v\n", err)
		} else {
			out = append(out, v)
		}
	}

	return out
}
