package consensus

import (
	"fmt"

	"github.com/yxzhu/wubiq/internal/model"
)

// Strategy selects how recognizer disagreements are resolved. The set is
// closed; Decide rejects anything else.
type Strategy string

const (
	// StrategyStrict accepts only results at least two recognizers
	// agree on; a lone voice goes to review.
	StrategyStrict Strategy = "strict"
	// StrategyBalanced accepts a disagreeing position when exactly one
	// recognizer is highly confident there, and accepts the sole result
	// when only one recognizer produced one.
	StrategyBalanced Strategy = "balanced"
	// StrategyLenient prefers the template matcher, falling back to the
	// classifier and then any other recognizer when it failed entirely.
	StrategyLenient Strategy = "lenient"
)

// ParseStrategy validates a strategy name from config or flags.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyStrict, StrategyBalanced, StrategyLenient:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown consensus strategy %q (supported: strict, balanced, lenient)", s)
	}
}

// Reason identifies which decision branch produced a verdict or a position.
type Reason string

const (
	ReasonAgreement          Reason = "agreement"
	ReasonHighConfidence     Reason = "high-confidence-override"
	ReasonSingleRecognizer   Reason = "single-recognizer"
	ReasonTemplatePreferred  Reason = "template-preferred"
	ReasonClassifierFallback Reason = "classifier-fallback"
	ReasonFallback           Reason = "fallback"
	ReasonDisagreement       Reason = "disagreement"
	ReasonAllFailed          Reason = "all-recognizers-failed"
)

// Verdict is the reconciled outcome for one image. Final is present exactly
// when Review is false; Positions records the branch that fired per digit
// position for auditing.
type Verdict struct {
	Final     string                   `json:"final,omitempty"`
	Review    bool                     `json:"review"`
	Reason    Reason                   `json:"reason"`
	Positions [model.DigitCount]Reason `json:"positions"`
}

// DefaultHighConfidence is the balanced-strategy override threshold.
const DefaultHighConfidence = 0.90

// Engine reconciles 1..N recognition results per image. Used only by the
// offline batch labeling path; the live retry loop never consults it.
type Engine struct {
	strategy       Strategy
	highConfidence float64
}

// NewEngine builds a consensus engine. A non-positive threshold falls back
// to DefaultHighConfidence.
func NewEngine(strategy Strategy, highConfidence float64) *Engine {
	if highConfidence <= 0 {
		highConfidence = DefaultHighConfidence
	}
	return &Engine{strategy: strategy, highConfidence: highConfidence}
}

// Decide reconciles the results of all configured recognizers for one image
// into an accept-or-review verdict. Positions are decided independently and
// then assembled; under the strict strategy a single disagreeing position
// rejects the whole verdict.
func (e *Engine) Decide(results []model.RecognitionResult) Verdict {
	viable := make([]model.RecognitionResult, 0, len(results))
	for _, r := range results {
		if r.Valid() {
			viable = append(viable, r)
		}
	}

	if len(viable) == 0 {
		v := Verdict{Review: true, Reason: ReasonAllFailed}
		for i := range v.Positions {
			v.Positions[i] = ReasonAllFailed
		}
		return v
	}

	// A lone result has nothing to agree with. Strict demands a second
	// voice and sends it to review; balanced and lenient take it as-is.
	if len(viable) == 1 {
		v := Verdict{Reason: ReasonSingleRecognizer}
		for i := range v.Positions {
			v.Positions[i] = ReasonSingleRecognizer
		}
		if e.strategy == StrategyStrict {
			v.Review = true
			return v
		}
		v.Final = viable[0].Digits
		return v
	}

	var v Verdict
	final := make([]byte, 0, model.DigitCount)
	for pos := 0; pos < model.DigitCount; pos++ {
		digit, reason := e.decidePosition(viable, pos)
		v.Positions[pos] = reason
		if reason == ReasonDisagreement {
			v.Review = true
			continue
		}
		final = append(final, digit)
	}

	v.Reason = assembleReason(v.Positions, v.Review)
	if !v.Review {
		v.Final = string(final)
	}
	return v
}

// decidePosition resolves one digit position across the viable results.
func (e *Engine) decidePosition(viable []model.RecognitionResult, pos int) (byte, Reason) {
	agreed := true
	for _, r := range viable[1:] {
		if r.Digits[pos] != viable[0].Digits[pos] {
			agreed = false
			break
		}
	}
	if agreed {
		return viable[0].Digits[pos], ReasonAgreement
	}

	switch e.strategy {
	case StrategyStrict:
		return 0, ReasonDisagreement

	case StrategyBalanced:
		confident := -1
		for i, r := range viable {
			if r.Confidence[pos] >= e.highConfidence {
				if confident >= 0 {
					return 0, ReasonDisagreement // more than one confident voice
				}
				confident = i
			}
		}
		if confident < 0 {
			return 0, ReasonDisagreement
		}
		return viable[confident].Digits[pos], ReasonHighConfidence

	case StrategyLenient:
		for _, r := range viable {
			if r.Recognizer == model.RecognizerTemplate {
				return r.Digits[pos], ReasonTemplatePreferred
			}
		}
		for _, r := range viable {
			if r.Recognizer == model.RecognizerClassifier {
				return r.Digits[pos], ReasonClassifierFallback
			}
		}
		return viable[0].Digits[pos], ReasonFallback

	default:
		return 0, ReasonDisagreement
	}
}

// assembleReason reduces per-position branches to the verdict-level reason:
// the most consequential branch that fired anywhere.
func assembleReason(positions [model.DigitCount]Reason, review bool) Reason {
	if review {
		return ReasonDisagreement
	}
	order := []Reason{
		ReasonHighConfidence,
		ReasonTemplatePreferred,
		ReasonClassifierFallback,
		ReasonFallback,
		ReasonSingleRecognizer,
	}
	for _, r := range order {
		for _, p := range positions {
			if p == r {
				return r
			}
		}
	}
	return ReasonAgreement
}
