package label

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/yxzhu/wubiq/internal/consensus"
	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/recognize"
	"github.com/yxzhu/wubiq/internal/store"
)

// writeCaptcha writes a decodable PNG with four ink blocks.
func writeCaptcha(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.White)
		}
	}
	for _, x0 := range []int{2, 12, 22, 32} {
		for y := 1; y < 11; y++ {
			for x := x0; x < x0+6; x++ {
				img.Set(x, y, color.Black)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

type stubRecognizer struct {
	name   string
	digits string
	err    error
}

func (s stubRecognizer) Name() string { return s.name }

func (s stubRecognizer) Recognize(ctx context.Context, in recognize.Input) (model.RecognitionResult, error) {
	if s.err != nil {
		return model.RecognitionResult{}, s.err
	}
	res := model.RecognitionResult{Recognizer: s.name, Digits: s.digits}
	for i := range res.Confidence {
		res.Confidence[i] = 1
	}
	return res, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestBatcherLabelsAndRenames(t *testing.T) {
	dir := t.TempDir()
	writeCaptcha(t, filepath.Join(dir, "cap1.png"))
	writeCaptcha(t, filepath.Join(dir, "cap2.png"))
	writeCaptcha(t, filepath.Join(dir, "old_1234.png")) // already labeled

	st, err := store.Open(filepath.Join(t.TempDir(), "templates.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	recognizers := []recognize.Recognizer{
		stubRecognizer{name: model.RecognizerTemplate, digits: "4607"},
		stubRecognizer{name: model.RecognizerClassifier, digits: "4607"},
	}
	b := NewBatcher(recognizers, consensus.NewEngine(consensus.StrategyBalanced, 0.90), st, 2, false, nil)

	report, err := b.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Total != 3 || report.Skipped != 1 || report.Labeled != 2 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if !exists(filepath.Join(dir, "cap1_4607.png")) || !exists(filepath.Join(dir, "cap2_4607.png")) {
		t.Fatal("accepted images were not renamed")
	}
	if exists(filepath.Join(dir, "cap1.png")) {
		t.Fatal("original filename should be gone after relabeling")
	}

	n, err := st.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n == 0 {
		t.Fatal("expected labeled glyphs appended to the template store")
	}
	if report.Appended == 0 {
		t.Fatal("report should count appended patterns")
	}
}

func TestBatcherDryRun(t *testing.T) {
	dir := t.TempDir()
	writeCaptcha(t, filepath.Join(dir, "cap1.png"))

	recognizers := []recognize.Recognizer{
		stubRecognizer{name: model.RecognizerTemplate, digits: "4607"},
		stubRecognizer{name: model.RecognizerClassifier, digits: "4607"},
	}
	b := NewBatcher(recognizers, consensus.NewEngine(consensus.StrategyBalanced, 0.90), nil, 1, true, nil)

	report, err := b.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Labeled != 1 {
		t.Fatalf("expected 1 labeled in dry run, got %d", report.Labeled)
	}
	if !exists(filepath.Join(dir, "cap1.png")) {
		t.Fatal("dry run must not rename files")
	}
}

func TestBatcherQueuesDisagreements(t *testing.T) {
	dir := t.TempDir()
	writeCaptcha(t, filepath.Join(dir, "cap1.png"))

	recognizers := []recognize.Recognizer{
		stubRecognizer{name: model.RecognizerTemplate, digits: "1851"},
		stubRecognizer{name: model.RecognizerClassifier, digits: "1857"},
	}
	b := NewBatcher(recognizers, consensus.NewEngine(consensus.StrategyBalanced, 0.90), nil, 1, false, nil)

	report, err := b.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Review != 1 || len(report.Queue) != 1 {
		t.Fatalf("expected one review item, got %+v", report)
	}
	if report.Labeled != 0 {
		t.Fatalf("disagreement must not be labeled, got %d", report.Labeled)
	}
	if !exists(filepath.Join(dir, "cap1.png")) {
		t.Fatal("reviewed image must keep its name")
	}
	if report.Queue[0].Verdict.Reason != consensus.ReasonDisagreement {
		t.Fatalf("unexpected verdict reason %s", report.Queue[0].Verdict.Reason)
	}
}

func TestBatcherCountsUnreadableImages(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "junk.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	recognizers := []recognize.Recognizer{
		stubRecognizer{name: model.RecognizerTemplate, digits: "4607"},
	}
	b := NewBatcher(recognizers, consensus.NewEngine(consensus.StrategyLenient, 0.90), nil, 1, false, nil)

	report, err := b.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failed image, got %d", report.Failed)
	}
}
