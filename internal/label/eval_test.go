package label

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yxzhu/wubiq/internal/consensus"
	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/recognize"
)

func TestEvaluatorScoresRecognizers(t *testing.T) {
	dir := t.TempDir()
	writeCaptcha(t, filepath.Join(dir, "a_4607.png"))
	writeCaptcha(t, filepath.Join(dir, "b_1851.png"))
	writeCaptcha(t, filepath.Join(dir, "unlabeled.png"))

	saveDir := filepath.Join(t.TempDir(), "failed")
	recognizers := []recognize.Recognizer{
		stubRecognizer{name: model.RecognizerTemplate, digits: "4607"}, // right for a, wrong for b
		stubRecognizer{name: model.RecognizerClassifier, err: errors.New("tesseract missing")},
	}
	e := NewEvaluator(recognizers, consensus.NewEngine(consensus.StrategyBalanced, 0.90), 2, saveDir, nil)

	report, err := e.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Total != 2 || report.Unlabeled != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}

	tmpl := report.Recognizers[model.RecognizerTemplate]
	if tmpl.Correct != 1 || tmpl.Wrong != 1 {
		t.Fatalf("template score: %+v", tmpl)
	}
	if got := tmpl.Accuracy(); got != 0.5 {
		t.Fatalf("template accuracy: %v", got)
	}
	cls := report.Recognizers[model.RecognizerClassifier]
	if cls.Errored != 2 {
		t.Fatalf("classifier score: %+v", cls)
	}

	if report.Consensus.Correct != 1 || report.Consensus.Wrong != 1 {
		t.Fatalf("consensus score: %+v", report.Consensus)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %d", len(report.Mismatches))
	}
	m := report.Mismatches[0]
	if m.Want != "1851" || m.Final != "4607" {
		t.Fatalf("unexpected mismatch: %+v", m)
	}
	if m.Guesses[model.RecognizerTemplate] != "4607" {
		t.Fatalf("mismatch should record per-recognizer guesses: %+v", m.Guesses)
	}

	if !exists(filepath.Join(saveDir, "b_1851.png")) {
		t.Fatal("consensus miss should be copied to the save-failed directory")
	}
	if exists(filepath.Join(saveDir, "a_4607.png")) {
		t.Fatal("correct images must not be copied")
	}
}

func TestEvaluatorCountsUnreadable(t *testing.T) {
	dir := t.TempDir()
	writeCaptcha(t, filepath.Join(dir, "a_4607.png"))
	if err := os.WriteFile(filepath.Join(dir, "bad_1234.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	recognizers := []recognize.Recognizer{
		stubRecognizer{name: model.RecognizerTemplate, digits: "4607"},
	}
	e := NewEvaluator(recognizers, consensus.NewEngine(consensus.StrategyBalanced, 0.90), 1, "", nil)

	report, err := e.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Unreadable != 1 {
		t.Fatalf("expected 1 unreadable, got %d", report.Unreadable)
	}
	if report.Consensus.Correct != 1 {
		t.Fatalf("readable fixture should still be scored: %+v", report.Consensus)
	}
}

func TestScoreAccuracyEmpty(t *testing.T) {
	if got := (Score{}).Accuracy(); got != 0 {
		t.Fatalf("empty score accuracy should be 0, got %v", got)
	}
}
