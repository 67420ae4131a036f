package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/terminus/internal/logging"
	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/workflow"
)

// Version is set at build time
var Version = "0.1.0"

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
	timeout    time.Duration
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "terminus",
	Short: "Terminus - Domain glossary with reviewed, LLM-enriched definitions",
	Long: `Terminus maintains a glossary of domain terms.

A lookup answers from the official glossary, then from the candidates under
review. Unknown terms are resolved from Wikipedia, enriched with follow-up
questions by an LLM, and stored as candidates until a reviewer approves
(promotes) or rejects them.

Terminus can also extract the domain terms found in a text, and serve every
operation as MCP tools.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command; ctx cancels long-running commands such as serve
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "terminus v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.terminus/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.BoolVar(&jsonOutput, "json", false, "print results as JSON")
	flags.DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout of the command")
	flags.String("domain", "", "topic domain (e.g. finance)")
	flags.String("llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	flags.String("llm-model", "", "LLM model name")
	flags.String("db", "", "path of the SQLite store")
	flags.String("log-file", "", "append JSON debug logs to this file")

	// Bind flags to viper
	_ = viper.BindPFlag("topic.domain", flags.Lookup("domain"))
	_ = viper.BindPFlag("llm.provider", flags.Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.model", flags.Lookup("llm-model"))
	_ = viper.BindPFlag("store.path", flags.Lookup("db"))
	_ = viper.BindPFlag("log.file", flags.Lookup("log-file"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if err := loadViper(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	if verbose && viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadViper layers defaults, the config file and TERMINUS_* variables into v.
// A missing default config file is not an error; a missing explicit one is.
func loadViper(v *viper.Viper, file string) error {
	defaults, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	// Read in environment variables that match TERMINUS_*
	v.SetEnvPrefix("TERMINUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		file = filepath.Join(home, ".terminus", "config.yaml")
		if _, err := os.Stat(file); err != nil {
			return nil
		}
	}

	v.SetConfigFile(file)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", file, err)
	}
	return nil
}

// loadConfig decodes v into a Config and fills what the environment provides
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Get API key from environment
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if strings.EqualFold(cfg.LLM.Provider, "ollama") && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	if cfg.Store.Path == "" || (cfg.Cache.Enabled && cfg.Cache.Dir == "") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}
		if cfg.Store.Path == "" {
			cfg.Store.Path = filepath.Join(home, ".terminus", "terminus.db")
		}
		if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
			cfg.Cache.Dir = filepath.Join(home, ".terminus", "cache")
		}
	}

	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// session is one command's wired runtime
type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     *model.Config
	logger  *zap.Logger
	runtime *workflow.Runtime
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	rt, err := workflow.Build(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return &session{ctx: ctx, cancel: cancel, cfg: cfg, logger: logger, runtime: rt}, nil
}

func (s *session) Close() {
	s.cancel()
	if err := s.runtime.Close(); err != nil {
		s.logger.Warn("closing store", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// ExitCode maps an error to the process exit status
func ExitCode(err error) int {
	switch model.ErrorKind(err) {
	case "":
		return 0
	case "not_found":
		return 2
	case "conflict":
		return 3
	case "provider_error":
		return 4
	case "schema_violation":
		return 5
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 4
	}
	return 1
}
