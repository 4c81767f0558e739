package recognize

import (
	"context"

	"github.com/yxzhu/wubiq/internal/imaging"
	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/store"
)

// defaultFloor is the worst acceptable best-match distance. A glyph further
// than this from every stored pattern yields no candidate for its position.
const defaultFloor = imaging.MaxDistance / 3

// TemplateMatcher is a nearest-neighbor recognizer over a fixed snapshot of
// the template library. Deterministic: for one snapshot and one glyph it
// always returns the same digit, with ties broken by lowest digit and then
// insertion order.
type TemplateMatcher struct {
	snap  *store.Snapshot
	floor int
}

// NewTemplateMatcher builds a matcher over the given library snapshot.
func NewTemplateMatcher(snap *store.Snapshot) *TemplateMatcher {
	return &TemplateMatcher{snap: snap, floor: defaultFloor}
}

func (m *TemplateMatcher) Name() string { return model.RecognizerTemplate }

// Recognize matches every glyph cell against the snapshot. Returns
// model.ErrTemplateLibraryEmpty when the snapshot holds no patterns.
func (m *TemplateMatcher) Recognize(ctx context.Context, in Input) (model.RecognitionResult, error) {
	res := model.RecognitionResult{Recognizer: m.Name()}
	if m.snap.Empty() {
		return res, model.ErrTemplateLibraryEmpty
	}

	digits := make([]byte, 0, model.DigitCount)
	for i, g := range in.Glyphs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		digit, conf, ok := m.match(g)
		if !ok {
			digits = append(digits, '?')
			continue
		}
		digits = append(digits, byte('0'+digit))
		res.Confidence[i] = conf
	}
	res.Digits = string(digits)
	return res, nil
}

// match runs nearest-neighbor search for one glyph. Confidence is the margin
// between the best and second-best candidate distances, normalized to [0,1];
// a snapshot with a single pattern scores against the maximum distance.
func (m *TemplateMatcher) match(g imaging.Glyph) (int, float64, bool) {
	bestDigit := -1
	best := imaging.MaxDistance + 1
	second := imaging.MaxDistance + 1

	for digit := 0; digit <= 9; digit++ {
		for _, pattern := range m.snap.Lookup(digit) {
			d := g.Hamming(pattern)
			switch {
			case d < best:
				second = best
				best = d
				bestDigit = digit
			case d < second:
				second = d
			}
		}
	}

	if bestDigit < 0 || best > m.floor {
		return 0, 0, false
	}
	if second > imaging.MaxDistance {
		second = imaging.MaxDistance
	}

	conf := float64(second-best) / float64(imaging.MaxDistance)
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return bestDigit, conf, true
}
