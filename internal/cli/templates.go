package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yxzhu/wubiq/internal/imaging"
	"github.com/yxzhu/wubiq/internal/label"
	"github.com/yxzhu/wubiq/internal/store"
)

// templatesCmd represents the templates command
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and grow the template library",
}

var templatesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show template library size per digit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open template store: %w", err)
		}
		defer st.Close()

		total, err := st.Count()
		if err != nil {
			return err
		}
		byDigit, err := st.CountByDigit()
		if err != nil {
			return err
		}

		fmt.Printf("Template library: %s\n", cfg.Store.Path)
		fmt.Printf("Patterns: %d\n", total)
		for d := 0; d <= 9; d++ {
			fmt.Printf("  %d: %d\n", d, byDigit[d])
		}
		return nil
	},
}

var templatesImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import labeled fixtures as template patterns",
	Long: `Import normalizes every labeled image in a directory and appends its
glyphs to the template library. Duplicates are skipped; importing the same
corpus twice is harmless.`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplatesImport,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesStatsCmd)
	templatesCmd.AddCommand(templatesImportCmd)
}

func runTemplatesImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open template store: %w", err)
	}
	defer st.Close()

	fixtures, err := label.ListFixtures(args[0])
	if err != nil {
		return err
	}

	imported, added, skipped := 0, 0, 0
	for _, f := range fixtures {
		if !f.Labeled() {
			skipped++
			continue
		}
		raw, err := os.ReadFile(f.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			continue
		}
		glyphs, err := imaging.Normalize(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: normalize %s: %v\n", f.Path, err)
			continue
		}
		n, err := st.AppendLabeled(f.Label, glyphs, filepath.Base(f.Path))
		if err != nil {
			return fmt.Errorf("import %s: %w", f.Path, err)
		}
		imported++
		added += n
	}

	fmt.Printf("Imported %d fixtures: %d new patterns (%d unlabeled skipped)\n", imported, added, skipped)
	return nil
}
