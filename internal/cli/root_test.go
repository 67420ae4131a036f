package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/terminus/internal/model"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolateHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	v := viper.New()
	if err := loadViper(v, ""); err != nil {
		t.Fatalf("loadViper: %v", err)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	want := model.DefaultConfig()
	if cfg.Topic.Domain != want.Topic.Domain {
		t.Errorf("domain = %q, want %q", cfg.Topic.Domain, want.Topic.Domain)
	}
	if cfg.Source.Timeout != want.Source.Timeout {
		t.Errorf("source timeout = %v, want %v", cfg.Source.Timeout, want.Source.Timeout)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %q, want it taken from OPENAI_API_KEY", cfg.LLM.APIKey)
	}
	if got, want := cfg.Store.Path, filepath.Join(home, ".terminus", "terminus.db"); got != want {
		t.Errorf("store path = %q, want %q", got, want)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `topic:
  domain: law
llm:
  provider: ollama
  model: llama3.1:8b
concurrency:
  precompute_workers: 3
source:
  timeout: 4s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TERMINUS_CONCURRENCY_PRECOMPUTE_WORKERS", "7")
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")

	v := viper.New()
	if err := loadViper(v, path); err != nil {
		t.Fatalf("loadViper: %v", err)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Topic.Domain != "law" {
		t.Errorf("domain = %q, want law", cfg.Topic.Domain)
	}
	if cfg.LLM.Model != "llama3.1:8b" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.Concurrency.PrecomputeWorkers != 7 {
		t.Errorf("precompute workers = %d, want the environment's 7", cfg.Concurrency.PrecomputeWorkers)
	}
	if cfg.Source.Timeout != 4*time.Second {
		t.Errorf("source timeout = %v, want 4s", cfg.Source.Timeout)
	}
	if cfg.LLM.BaseURL != "http://gpu-box:11434" {
		t.Errorf("base url = %q, want OLLAMA_BASE_URL", cfg.LLM.BaseURL)
	}
	// Untouched sections keep their defaults
	if cfg.Workflow.MaxFollowUps != model.DefaultConfig().Workflow.MaxFollowUps {
		t.Errorf("max follow-ups = %d", cfg.Workflow.MaxFollowUps)
	}
}

func TestLoadViper_MissingExplicitFile(t *testing.T) {
	isolateHome(t)
	if err := loadViper(viper.New(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func TestInitConfigFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := initConfigFile(path); err != nil {
		t.Fatalf("initConfigFile: %v", err)
	}
	if err := initConfigFile(path); err == nil {
		t.Error("expected the second init to refuse overwriting")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Terminus configuration") {
		t.Errorf("missing header:\n%s", data)
	}

	v := viper.New()
	if err := loadViper(v, path); err != nil {
		t.Fatalf("generated file does not load: %v", err)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Topic.Domain != model.DefaultConfig().Topic.Domain {
		t.Errorf("domain = %q", cfg.Topic.Domain)
	}
}

func TestRedact(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"

	var buf bytes.Buffer
	if err := writeConfig(&buf, redact(cfg)); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "sk-secret") {
		t.Error("api key leaked into the printed config")
	}
	if cfg.LLM.APIKey != "sk-secret" {
		t.Error("redact modified the original config")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"not found", fmt.Errorf("lookup: %w", model.ErrNotFound), 2},
		{"duplicate", model.ErrDuplicateKey, 3},
		{"transition", model.ErrInvalidTransition, 3},
		{"provider", model.NewProviderError("wikipedia", errors.New("503")), 4},
		{"timeout", fmt.Errorf("lookup: %w", context.DeadlineExceeded), 4},
		{"schema", &model.SchemaViolationError{Schema: "follow_ups", Err: errors.New("bad")}, 5},
		{"invalid term", model.ErrInvalidTerm, 1},
		{"other", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCandidatesList_EmptyStore(t *testing.T) {
	isolateHome(t)
	t.Setenv("TERMINUS_LLM_PROVIDER", "ollama")
	db := filepath.Join(t.TempDir(), "terminus.db")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"candidates", "list", "--db", db})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := Execute(context.Background()); err != nil {
		t.Fatalf("candidates list: %v", err)
	}
	if !strings.Contains(stderr.String(), "No candidates.") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if _, err := os.Stat(db); err != nil {
		t.Errorf("store was not created: %v", err)
	}
}

func TestReview_RequiresOneDecision(t *testing.T) {
	reviewApprove, reviewReject = false, false
	err := reviewCmd.RunE(reviewCmd, []string{"bond"})
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Errorf("err = %v", err)
	}
}
