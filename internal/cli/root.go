package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/recognize"
	"github.com/yxzhu/wubiq/internal/store"
)

var (
	cfgFile string
	verbose bool
	asJSON  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "wubiq",
	Short: "Wubiq - Wubi decomposition lookup with captcha cross-validation",
	Long: `Wubiq queries the wangma.com.cn decomposition service for Chinese
characters. The service protects its form with a 4-digit captcha; wubiq
recognizes it with a self-growing template library cross-validated against
an OCR classifier, and retries with fresh captchas until the server accepts.

Beyond lookups it maintains the training corpus: bulk-fetching captchas,
batch-labeling them by recognizer consensus, and scoring recognizers
against labeled fixtures.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("wubiq v0.3.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.wubiq/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "emit JSON instead of text")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("output.json", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".wubiq"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match WUBIQ_*
	viper.SetEnvPrefix("WUBIQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file and environment over the defaults.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := viper.GetString("query.base_url"); v != "" {
		cfg.Query.BaseURL = v
	}
	if v := viper.GetString("consensus.strategy"); v != "" {
		cfg.Consensus.Strategy = v
	}
	cfg.Vision.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Output.Verbose = verbose
	cfg.Output.JSON = asJSON

	return cfg, nil
}

// openRecognizers opens the template store and builds the configured
// recognizer set. The caller owns the returned store handle.
func openRecognizers(cfg *model.Config) (*store.Store, []recognize.Recognizer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create store dir: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open template store: %w", err)
	}

	snap, err := st.Snapshot()
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("load template snapshot: %w", err)
	}

	return st, recognize.New(cfg, snap), nil
}

// traceWriter returns the verbose diagnostics sink, nil when quiet.
func traceWriter(cfg *model.Config) io.Writer {
	if cfg.Output.Verbose {
		return os.Stderr
	}
	return nil
}
