package label

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/yxzhu/wubiq/internal/consensus"
	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/recognize"
	"github.com/yxzhu/wubiq/internal/worker"
)

// Score counts one recognizer's verdicts over a labeled corpus.
type Score struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Errored int `json:"errored"`
}

// Accuracy is the fraction of attempts that matched the ground truth.
func (s Score) Accuracy() float64 {
	total := s.Correct + s.Wrong + s.Errored
	if total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(total)
}

// Mismatch records one image the consensus verdict got wrong.
type Mismatch struct {
	Path    string            `json:"path"`
	Want    string            `json:"want"`
	Guesses map[string]string `json:"guesses"`
	Final   string            `json:"final"`
}

// EvalReport scores every recognizer and the consensus verdict against a
// directory of labeled fixtures.
type EvalReport struct {
	Total       int              `json:"total"`
	Unlabeled   int              `json:"unlabeled"`
	Unreadable  int              `json:"unreadable"`
	Recognizers map[string]Score `json:"recognizers"`
	Consensus   Score            `json:"consensus"`
	Mismatches  []Mismatch       `json:"mismatches,omitempty"`
}

// Evaluator measures recognizer accuracy on labeled fixtures. saveFailed
// names a directory that receives a copy of every consensus miss for later
// inspection; empty disables the copy.
type Evaluator struct {
	recognizers []recognize.Recognizer
	engine      *consensus.Engine
	workers     int
	saveFailed  string
	logw        io.Writer
}

// NewEvaluator builds an evaluator. logw may be nil.
func NewEvaluator(recognizers []recognize.Recognizer, engine *consensus.Engine, workers int, saveFailed string, logw io.Writer) *Evaluator {
	return &Evaluator{
		recognizers: recognizers,
		engine:      engine,
		workers:     workers,
		saveFailed:  saveFailed,
		logw:        logw,
	}
}

type evalJob struct {
	e   *Evaluator
	img model.CaptchaImage
}

type evalOutcome struct {
	img     model.CaptchaImage
	raw     []byte
	guesses []model.RecognitionResult
	errored []string
	verdict consensus.Verdict
	err     error
}

func (o *evalOutcome) GetError() error { return o.err }

func (j evalJob) Execute(ctx context.Context) worker.Result {
	out := &evalOutcome{img: j.img}

	raw, err := os.ReadFile(j.img.Path)
	if err != nil {
		out.err = fmt.Errorf("read %s: %w", j.img.Path, err)
		return out
	}
	out.raw = raw

	in, err := recognize.NewInput(model.CaptchaImage{Raw: raw, Path: j.img.Path})
	if err != nil {
		out.err = fmt.Errorf("normalize %s: %w", j.img.Path, err)
		return out
	}

	for _, r := range j.e.recognizers {
		res, err := r.Recognize(ctx, in)
		if err != nil {
			out.errored = append(out.errored, r.Name())
			continue
		}
		out.guesses = append(out.guesses, res)
	}

	out.verdict = j.e.engine.Decide(out.guesses)
	return out
}

// Run scores every labeled image directly under dir.
func (e *Evaluator) Run(ctx context.Context, dir string) (*EvalReport, error) {
	fixtures, err := ListFixtures(dir)
	if err != nil {
		return nil, err
	}

	report := &EvalReport{Recognizers: make(map[string]Score)}
	var jobs []worker.Job
	for _, f := range fixtures {
		if !f.Labeled() {
			report.Unlabeled++
			continue
		}
		report.Total++
		jobs = append(jobs, evalJob{e: e, img: f})
	}

	for _, res := range worker.NewPool(e.workers).Run(ctx, jobs) {
		o := res.(*evalOutcome)
		if o.err != nil {
			report.Unreadable++
			e.trace("%v", o.err)
			continue
		}
		e.tally(o, report)
	}

	sort.Slice(report.Mismatches, func(i, j int) bool { return report.Mismatches[i].Path < report.Mismatches[j].Path })
	return report, nil
}

func (e *Evaluator) tally(o *evalOutcome, report *EvalReport) {
	want := o.img.Label

	for _, name := range o.errored {
		s := report.Recognizers[name]
		s.Errored++
		report.Recognizers[name] = s
	}
	guessed := make(map[string]string, len(o.guesses))
	for _, g := range o.guesses {
		guessed[g.Recognizer] = g.Digits
		s := report.Recognizers[g.Recognizer]
		if g.Digits == want {
			s.Correct++
		} else {
			s.Wrong++
		}
		report.Recognizers[g.Recognizer] = s
	}

	if o.verdict.Final == want && !o.verdict.Review {
		report.Consensus.Correct++
		return
	}
	report.Consensus.Wrong++
	report.Mismatches = append(report.Mismatches, Mismatch{
		Path:    o.img.Path,
		Want:    want,
		Guesses: guessed,
		Final:   o.verdict.Final,
	})
	if err := e.saveMiss(o); err != nil {
		e.trace("save failed image: %v", err)
	}
}

func (e *Evaluator) saveMiss(o *evalOutcome) error {
	if e.saveFailed == "" {
		return nil
	}
	if err := os.MkdirAll(e.saveFailed, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(e.saveFailed, filepath.Base(o.img.Path)), o.raw, 0o644)
}

func (e *Evaluator) trace(format string, args ...any) {
	if e.logw == nil {
		return
	}
	fmt.Fprintf(e.logw, format+"\n", args...)
}
