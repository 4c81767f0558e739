package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/yxzhu/wubiq/internal/query"
	"github.com/yxzhu/wubiq/internal/util"
)

var (
	fetchCount int
	fetchDelay time.Duration
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <dir>",
	Short: "Bulk-download captcha images into a corpus directory",
	Long: `Fetch downloads fresh captcha images for later labeling. Each capture
uses its own server session, respects robots.txt, and waits between
requests.

Example:
  wubiq fetch ./corpus --count 50 --delay 2s`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().IntVar(&fetchCount, "count", 20, "number of captchas to download")
	fetchCmd.Flags().DurationVar(&fetchDelay, "delay", time.Second, "pause between downloads")
}

func runFetch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}

	client, err := query.NewClient(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	captchaURL := client.BaseURL() + cfg.Query.CaptchaPath

	robots := util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout)
	allowed, crawlDelay, err := robots.CanFetch(ctx, captchaURL)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("robots.txt disallows fetching %s", captchaURL)
	}
	delay := fetchDelay
	if crawlDelay > delay {
		delay = crawlDelay
	}

	saved := 0
	for i := 0; i < fetchCount; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		raw, err := fetchOne(ctx, client)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: capture %d failed: %v\n", i+1, err)
			continue
		}

		name := fmt.Sprintf("capture_%s_%03d%s", time.Now().Format("20060102150405"), i, imageExt(raw))
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		saved++
		if verbose {
			fmt.Fprintf(os.Stderr, "saved %s (%d bytes)\n", name, len(raw))
		}
	}

	fmt.Printf("Saved %d/%d captchas to %s\n", saved, fetchCount, dir)
	return nil
}

func fetchOne(ctx context.Context, client *query.Client) ([]byte, error) {
	sess, err := client.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return client.FetchCaptcha(ctx, sess)
}

// imageExt sniffs the capture format; the server serves BMP but archived
// mirrors sometimes return PNG.
func imageExt(raw []byte) string {
	switch {
	case bytes.HasPrefix(raw, []byte("BM")):
		return ".bmp"
	case bytes.HasPrefix(raw, []byte("\x89PNG")):
		return ".png"
	case bytes.HasPrefix(raw, []byte("GIF8")):
		return ".gif"
	default:
		return ".bmp"
	}
}
