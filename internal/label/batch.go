package label

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yxzhu/wubiq/internal/consensus"
	"github.com/yxzhu/wubiq/internal/imaging"
	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/recognize"
	"github.com/yxzhu/wubiq/internal/store"
	"github.com/yxzhu/wubiq/internal/worker"
)

// Batcher labels a directory of unlabeled captcha images: every recognizer
// guesses each image, the consensus engine arbitrates, and accepted labels
// are written back as a filename suffix plus fresh template patterns.
type Batcher struct {
	recognizers []recognize.Recognizer
	engine      *consensus.Engine
	store       *store.Store
	workers     int
	dryRun      bool
	logw        io.Writer
}

// NewBatcher builds a batcher. store may be nil to skip template growth;
// logw receives per-image diagnostics and may be nil. In dry-run mode
// nothing is renamed or stored.
func NewBatcher(recognizers []recognize.Recognizer, engine *consensus.Engine, st *store.Store, workers int, dryRun bool, logw io.Writer) *Batcher {
	return &Batcher{
		recognizers: recognizers,
		engine:      engine,
		store:       st,
		workers:     workers,
		dryRun:      dryRun,
		logw:        logw,
	}
}

// ReviewItem is one image the consensus engine refused to label
// automatically, kept for manual inspection.
type ReviewItem struct {
	Path    string                    `json:"path"`
	Verdict consensus.Verdict         `json:"verdict"`
	Guesses []model.RecognitionResult `json:"guesses"`
}

// BatchReport summarizes one labeling run.
type BatchReport struct {
	Total    int                      `json:"total"`
	Skipped  int                      `json:"skipped"` // filename already carries a label
	Labeled  int                      `json:"labeled"`
	Review   int                      `json:"review"`
	Failed   int                      `json:"failed"` // unreadable image or no usable guess
	Appended int                      `json:"appended"`
	ByReason map[consensus.Reason]int `json:"by_reason"`
	Queue    []ReviewItem             `json:"queue,omitempty"`
}

type batchJob struct {
	b   *Batcher
	img model.CaptchaImage
}

type batchOutcome struct {
	path    string
	verdict consensus.Verdict
	guesses []model.RecognitionResult
	glyphs  []imaging.Glyph
	err     error
}

func (o *batchOutcome) GetError() error { return o.err }

func (j batchJob) Execute(ctx context.Context) worker.Result {
	out := &batchOutcome{path: j.img.Path}

	raw, err := os.ReadFile(j.img.Path)
	if err != nil {
		out.err = fmt.Errorf("read %s: %w", j.img.Path, err)
		return out
	}

	in, err := recognize.NewInput(model.CaptchaImage{Raw: raw, Path: j.img.Path})
	if err != nil {
		out.err = fmt.Errorf("normalize %s: %w", j.img.Path, err)
		return out
	}
	out.glyphs = in.Glyphs

	for _, r := range j.b.recognizers {
		res, err := r.Recognize(ctx, in)
		if err != nil {
			j.b.trace("%s: %s failed: %v", in.ID, r.Name(), err)
			continue
		}
		out.guesses = append(out.guesses, res)
	}

	out.verdict = j.b.engine.Decide(out.guesses)
	return out
}

// Run labels every unlabeled image directly under dir and reports the
// outcome. Images whose consensus verdict needs review are queued, not
// renamed.
func (b *Batcher) Run(ctx context.Context, dir string) (*BatchReport, error) {
	fixtures, err := ListFixtures(dir)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{ByReason: make(map[consensus.Reason]int)}
	var jobs []worker.Job
	for _, f := range fixtures {
		report.Total++
		if f.Labeled() {
			report.Skipped++
			continue
		}
		jobs = append(jobs, batchJob{b: b, img: f})
	}

	for _, res := range worker.NewPool(b.workers).Run(ctx, jobs) {
		o := res.(*batchOutcome)
		if o.err != nil {
			report.Failed++
			b.trace("%v", o.err)
			continue
		}

		report.ByReason[o.verdict.Reason]++
		if o.verdict.Review || !model.IsDigits(o.verdict.Final) {
			report.Review++
			report.Queue = append(report.Queue, ReviewItem{
				Path:    o.path,
				Verdict: o.verdict,
				Guesses: o.guesses,
			})
			continue
		}

		if err := b.accept(o, report); err != nil {
			report.Failed++
			b.trace("accept %s: %v", o.path, err)
			continue
		}
		report.Labeled++
	}

	sort.Slice(report.Queue, func(i, j int) bool { return report.Queue[i].Path < report.Queue[j].Path })
	return report, nil
}

func (b *Batcher) accept(o *batchOutcome, report *BatchReport) error {
	b.trace("%s -> %s (%s)", filepath.Base(o.path), o.verdict.Final, o.verdict.Reason)
	if b.dryRun {
		return nil
	}

	if b.store != nil {
		added, err := b.store.AppendLabeled(o.verdict.Final, o.glyphs, filepath.Base(o.path))
		if err != nil {
			return fmt.Errorf("store patterns: %w", err)
		}
		report.Appended += added
	}

	return os.Rename(o.path, relabeledPath(o.path, o.verdict.Final))
}

// relabeledPath appends the label to the filename stem, preserving
// directory and extension.
func relabeledPath(path, label string) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+"_"+label+ext)
}

func (b *Batcher) trace(format string, args ...any) {
	if b.logw == nil {
		return
	}
	fmt.Fprintf(b.logw, format+"\n", args...)
}
