package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/yxzhu/wubiq/internal/cache"
	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/query"
)

var (
	queryAttempts int
	queryTimeout  time.Duration
	queryNoCache  bool
	queryImgDir   string
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <char>...",
	Short: "Look up the Wubi decomposition of one or more characters",
	Long: `Query fetches the Wubi decomposition of each character from the remote
form, solving its captcha along the way. Wrong captcha guesses are retried
with fresh sessions up to the attempt budget.

Successful lookups are cached; repeat queries never hit the network.

Example:
  wubiq query 学
  wubiq query 學 習 --attempts 8 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().IntVar(&queryAttempts, "attempts", 0, "max captcha attempts per character (default from config)")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 2*time.Minute, "overall timeout per character")
	queryCmd.Flags().BoolVar(&queryNoCache, "no-cache", false, "bypass the result cache")
	queryCmd.Flags().StringVar(&queryImgDir, "download-imgs", "", "download component images into this directory")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	attempts := queryAttempts
	if attempts <= 0 {
		attempts = cfg.Query.MaxAttempts
	}

	var results *cache.Decompositions
	if cfg.Cache.Enabled && !queryNoCache {
		results = cache.NewDecompositions(cfg.Cache)
	}

	st, recognizers, err := openRecognizers(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := query.NewClient(cfg)
	if err != nil {
		return err
	}
	runner := query.NewRunner(client, recognizers, client.BaseURL(), traceWriter(cfg))

	for _, char := range args {
		if results != nil {
			if dec, ok := results.Get(char); ok {
				if err := printDecomposition(cfg.Output.JSON, dec, 0); err != nil {
					return err
				}
				continue
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
		res, err := runner.Run(ctx, char, attempts)
		cancel()
		if err != nil {
			return fmt.Errorf("query %q: %w", char, err)
		}

		if results != nil {
			if err := results.Put(char, res.Decomposition); err != nil {
				fmt.Fprintf(os.Stderr, "warning: cache write failed: %v\n", err)
			}
		}
		if err := printDecomposition(cfg.Output.JSON, res.Decomposition, res.Attempts); err != nil {
			return err
		}
		if queryImgDir != "" {
			if err := downloadComponents(cmd.Context(), cfg, res.Decomposition, queryImgDir); err != nil {
				fmt.Fprintf(os.Stderr, "warning: component download: %v\n", err)
			}
		}
	}
	return nil
}

func printDecomposition(asJSON bool, dec *query.Decomposition, attempts int) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dec)
	}

	fmt.Printf("%s\n", dec.Char)
	printCode := func(label, code string) {
		if code == "" {
			return
		}
		fmt.Printf("  %-14s %s\n", label, code)
	}
	printCode("wubi 86:", dec.Wubi86)
	printCode("wubi 98:", dec.Wubi98)
	printCode("new century:", dec.WubiNewCentury)
	printCode("numeric 5-key:", dec.Numeric5)
	printCode("numeric 6-key:", dec.Numeric6)
	printCode("numeric 9-key:", dec.Numeric9)
	printCode("strokes:", dec.Strokes)
	if attempts > 1 {
		fmt.Printf("  (%d captcha attempts)\n", attempts)
	}
	return nil
}

// downloadComponents saves every component image the result page linked.
func downloadComponents(ctx context.Context, cfg *model.Config, dec *query.Decomposition, dir string) error {
	if len(dec.Components) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	for _, urls := range dec.Components {
		for _, rawURL := range urls {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", cfg.HTTP.UserAgent)

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, cfg.HTTP.MaxBodyBytes))
			resp.Body.Close()
			if err != nil {
				return err
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
			}

			name := path.Base(rawURL)
			if name == "" || name == "/" || name == "." {
				continue
			}
			if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}
