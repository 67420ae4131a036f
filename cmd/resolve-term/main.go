// Command resolve-term shows which Wikipedia page the resolver picks for
// each term, without touching the store or the LLM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/logging"
	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/workflow"
)

func main() {
	domain := flag.String("domain", "", "topic domain (default: finance)")
	debug := flag.Bool("debug", false, "log every source call")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: resolve-term [-domain d] [-debug] term...\n")
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false
	if *domain != "" {
		cfg.Topic = model.Topic{Domain: *domain}
	}

	logger, err := newLogger(cfg.Log, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	resolver := workflow.NewResolver(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false
	for _, term := range flag.Args() {
		fmt.Printf("%s\n%s\n", term, strings.Repeat("-", 60))
		res, err := resolver.Resolve(ctx, term, cfg.Topic)
		if err != nil {
			failed = true
			fmt.Printf("  ✗ %s: %v\n\n", model.ErrorKind(err), err)
			continue
		}
		fmt.Printf("  ✓ %s (via %s)\n  %s\n\n", res.Title, res.Strategy, res.Definition)
	}
	if failed {
		os.Exit(1)
	}
}

// newLogger logs warnings only, or everything with debug
func newLogger(cfg model.LogConfig, debug bool) (*zap.Logger, error) {
	cfg.Level = "warn"
	if debug {
		cfg.Level = "debug"
	}
	return logging.New(cfg)
}
