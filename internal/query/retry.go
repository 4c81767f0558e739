package query

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/recognize"
)

// State names one node of the live-attempt machine, reported in verbose
// diagnostics.
type State string

const (
	StateInit         State = "init"
	StateAwaitCaptcha State = "await-captcha"
	StateRecognized   State = "recognized"
	StateSubmitted    State = "submitted"
	StateSuccess      State = "success"
	StateWrongCaptcha State = "wrong-captcha"
	StateFatal        State = "fatal"
)

// Gateway is what one live attempt needs from the HTTP layer. *Client
// implements it; tests substitute a fake.
type Gateway interface {
	NewSession(ctx context.Context) (*Session, error)
	FetchCaptcha(ctx context.Context, s *Session) ([]byte, error)
	Submit(ctx context.Context, s *Session, char, code string) (Outcome, string, error)
}

// Result is a successful query: the downstream payload plus how many
// fetch+submit cycles it took.
type Result struct {
	Decomposition *Decomposition `json:"decomposition"`
	Attempts      int            `json:"attempts"`
}

// Runner drives exactly one recognizer per attempt through bounded retries
// against the remote form. Strictly sequential: one session at a time, each
// consumed by one fetch+submit pair. Wrong guesses are expected; the server
// is the referee and a rejected captcha just burns one attempt.
type Runner struct {
	gateway     Gateway
	recognizers []recognize.Recognizer
	baseURL     string
	logw        io.Writer
}

// NewRunner builds a runner. Recognizers are tried in live preference order
// (see LiveOrder); logw receives state diagnostics and may be nil.
func NewRunner(gateway Gateway, recognizers []recognize.Recognizer, baseURL string, logw io.Writer) *Runner {
	return &Runner{
		gateway:     gateway,
		recognizers: LiveOrder(recognizers),
		baseURL:     baseURL,
		logw:        logw,
	}
}

// LiveOrder orders recognizers for live attempts: the classifier first when
// available, then the template matcher. The vision recognizer never joins
// the live loop; it exists for batch consensus only.
func LiveOrder(rs []recognize.Recognizer) []recognize.Recognizer {
	out := make([]recognize.Recognizer, 0, len(rs))
	for _, r := range rs {
		if r.Name() == model.RecognizerClassifier {
			out = append(out, r)
		}
	}
	for _, r := range rs {
		if r.Name() == model.RecognizerTemplate {
			out = append(out, r)
		}
	}
	return out
}

// Run is the sole entry point for interactive callers. It performs at most
// maxAttempts fetch+submit cycles for char and returns the payload of the
// first accepted submission. Terminal failures are a *model.FatalError, the
// context error, or model.ErrRetriesExhausted.
func (r *Runner) Run(ctx context.Context, char string, maxAttempts int) (*Result, error) {
	if maxAttempts < 1 {
		return nil, fmt.Errorf("maxAttempts must be at least 1, got %d", maxAttempts)
	}
	if len(r.recognizers) == 0 {
		return nil, &model.FatalError{Reason: "no viable recognizer configured"}
	}

	lastFailure := model.ErrWrongCaptcha
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r.trace(StateInit, attempt, "")

		sess, err := r.gateway.NewSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("establish session: %w", err)
		}

		r.trace(StateAwaitCaptcha, attempt, "")
		raw, err := r.gateway.FetchCaptcha(ctx, sess)
		if err != nil {
			return nil, fmt.Errorf("fetch captcha: %w", err)
		}

		code, err := r.recognizeOnce(ctx, raw)
		if err != nil {
			r.trace(StateFatal, attempt, err.Error())
			return nil, err
		}
		r.trace(StateRecognized, attempt, code)

		outcome, page, err := r.gateway.Submit(ctx, sess, char, code)
		if err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
		r.trace(StateSubmitted, attempt, "")

		switch outcome {
		case OutcomeAccepted:
			dec, err := ParseDecomposition(page, r.baseURL, char)
			if err != nil {
				return nil, &model.FatalError{Reason: fmt.Sprintf("parse result page: %v", err)}
			}
			if dec.Empty() {
				// Accepted page without codes: the site sometimes serves a
				// blank table right after a captcha pass. Burn the attempt.
				r.trace(StateWrongCaptcha, attempt, "empty result table")
				lastFailure = errors.New("server served an empty result table")
				continue
			}
			r.trace(StateSuccess, attempt, "")
			return &Result{Decomposition: dec, Attempts: attempt}, nil

		case OutcomeWrongCaptcha:
			// Session is spent; loop back to a fresh one.
			r.trace(StateWrongCaptcha, attempt, code)
			lastFailure = model.ErrWrongCaptcha
			continue

		case OutcomeRejected:
			r.trace(StateFatal, attempt, "")
			return nil, &model.FatalError{Reason: fmt.Sprintf("server rejected query for %q", char)}

		default:
			return nil, &model.FatalError{Reason: fmt.Sprintf("unknown submit outcome %d", outcome)}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", model.ErrRetriesExhausted, maxAttempts, lastFailure)
}

// recognizeOnce produces one best-effort guess for the captcha, falling
// back across recognizers when one is unusable. No consensus here:
// correctness is enforced server-side via retry.
func (r *Runner) recognizeOnce(ctx context.Context, raw []byte) (string, error) {
	in, err := recognize.NewInput(model.CaptchaImage{Raw: raw})
	if err != nil {
		return "", &model.FatalError{Reason: fmt.Sprintf("normalize captcha: %v", err)}
	}

	var lastErr error
	for _, rec := range r.recognizers {
		res, err := rec.Recognize(ctx, in)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			lastErr = err
			continue
		}
		if res.Valid() {
			return res.Digits, nil
		}
		lastErr = fmt.Errorf("%s produced incomplete guess %q", rec.Name(), res.Digits)
	}

	return "", &model.FatalError{Reason: fmt.Sprintf("no recognizer produced a guess: %v", lastErr)}
}

func (r *Runner) trace(s State, attempt int, detail string) {
	if r.logw == nil {
		return
	}
	if detail != "" {
		fmt.Fprintf(r.logw, "attempt %d: %s (%s)\n", attempt, s, detail)
		return
	}
	fmt.Fprintf(r.logw, "attempt %d: %s\n", attempt, s)
}
