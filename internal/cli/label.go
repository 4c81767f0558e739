package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yxzhu/wubiq/internal/consensus"
	"github.com/yxzhu/wubiq/internal/label"
)

var (
	labelStrategy   string
	labelWorkers    int
	labelDryRun     bool
	labelReviewJSON string
)

// labelCmd represents the label command
var labelCmd = &cobra.Command{
	Use:   "label <dir>",
	Short: "Batch-label captcha images by recognizer consensus",
	Long: `Label runs every configured recognizer over the unlabeled images in a
directory and lets the consensus engine arbitrate. Accepted labels are
written into the filename and the glyphs grow the template library;
disagreements land in a review queue instead.

Strategies: strict (unanimous only), balanced (one confident voice may
override), lenient (template matcher wins, classifier fills gaps).

Example:
  wubiq label ./corpus
  wubiq label ./corpus --strategy strict --dry-run
  wubiq label ./corpus --review-json review.json`,
	Args: cobra.ExactArgs(1),
	RunE: runLabel,
}

func init() {
	rootCmd.AddCommand(labelCmd)

	labelCmd.Flags().StringVar(&labelStrategy, "strategy", "", "consensus strategy (default from config)")
	labelCmd.Flags().IntVar(&labelWorkers, "workers", 0, "parallel workers (default from config)")
	labelCmd.Flags().BoolVar(&labelDryRun, "dry-run", false, "decide labels without renaming or storing")
	labelCmd.Flags().StringVar(&labelReviewJSON, "review-json", "", "write the review queue to this file")
}

func runLabel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := buildEngine(cfg.Consensus.Strategy, labelStrategy, cfg.Consensus.HighConfidence)
	if err != nil {
		return err
	}
	workers := labelWorkers
	if workers <= 0 {
		workers = cfg.Concurrency.Workers
	}

	st, recognizers, err := openRecognizers(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if len(recognizers) == 0 {
		return fmt.Errorf("no recognizer available: seed the template library or enable the classifier")
	}

	b := label.NewBatcher(recognizers, engine, st, workers, labelDryRun, traceWriter(cfg))
	report, err := b.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if labelReviewJSON != "" && len(report.Queue) > 0 {
		raw, err := json.MarshalIndent(report.Queue, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(labelReviewJSON, raw, 0o644); err != nil {
			return fmt.Errorf("write review queue: %w", err)
		}
	}

	if cfg.Output.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Images:    %d (%d already labeled)\n", report.Total, report.Skipped)
	fmt.Printf("Labeled:   %d\n", report.Labeled)
	fmt.Printf("Review:    %d\n", report.Review)
	fmt.Printf("Failed:    %d\n", report.Failed)
	fmt.Printf("Templates: +%d\n", report.Appended)
	for reason, n := range report.ByReason {
		fmt.Printf("  %-26s %d\n", reason, n)
	}
	if labelDryRun {
		fmt.Println("(dry run: nothing renamed or stored)")
	}
	return nil
}

// buildEngine resolves the strategy from flag over config.
func buildEngine(configured, override string, highConfidence float64) (*consensus.Engine, error) {
	name := configured
	if override != "" {
		name = override
	}
	strategy, err := consensus.ParseStrategy(name)
	if err != nil {
		return nil, err
	}
	return consensus.NewEngine(strategy, highConfidence), nil
}
