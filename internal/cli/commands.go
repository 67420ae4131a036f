package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/worker"
	"github.com/ppiankov/terminus/internal/workflow"
)

var (
	reviewApprove bool
	reviewReject  bool
	reviewReason  string
	submitDef     string
	extractDomain string
	listStatus    string
	precomputeIn  string
	inputURL      string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <term>",
	Short: "Look up a term, creating a candidate when it is unknown",
	Long: `Lookup answers from the official glossary first, then from the candidate
store. A term found in neither is resolved from Wikipedia, enriched with
follow-up questions and stored as a candidate under review.

Example:
  terminus lookup bond
  terminus lookup "interest rate swap" --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.runtime.Orchestrator.Lookup(s.ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), result)
		}
		printLookup(cmd.OutOrStdout(), result)
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <term> (--approve | --reject [--reason text])",
	Short: "Approve or reject a candidate",
	Long: `Review decides on a candidate under review. Approval moves it to the
official glossary; rejection keeps it with the reason.

Example:
  terminus review bond --approve
  terminus review weather --reject --reason "not a finance term"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reviewApprove == reviewReject {
			return fmt.Errorf("exactly one of --approve or --reject is required")
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.runtime.Orchestrator.Review(s.ctx, args[0], reviewApprove, reviewReason)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), result)
		}
		if result.Decision == workflow.DecisionApproved {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s approved and moved to the official glossary\n", result.Term)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s rejected: %s\n", result.Term, result.Reason)
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract the domain terms found in a text",
	Long: `Extract reads text (or HTML) from a file, a web page (--url), or stdin
when neither is given, and prints the terms judged relevant to the domain.

Example:
  terminus extract article.txt
  terminus extract --url https://example.com/news --domain finance`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		text, err := s.readInput(cmd, args)
		if err != nil {
			return err
		}

		result, err := s.runtime.Orchestrator.ExtractTerms(s.ctx, text, extractDomain)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), result)
		}
		for _, term := range result.Terms {
			fmt.Fprintln(cmd.OutOrStdout(), term)
		}
		if len(result.Failed) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: critique failed for %s\n", strings.Join(result.Failed, ", "))
		}
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <term>",
	Short: "Submit a term as a new candidate",
	Long: `Submit stores a candidate directly. Without --definition the term is
resolved from Wikipedia. A term already in either store is a conflict.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		candidate, err := s.runtime.Orchestrator.Submit(s.ctx, args[0], submitDef)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), candidate)
		}
		printCandidate(cmd.OutOrStdout(), candidate)
		return nil
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Inspect and manage candidates",
}

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		list, err := s.runtime.Orchestrator.ListCandidates(s.ctx, model.Status(listStatus))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No candidates.")
			return nil
		}
		for _, c := range list {
			line := fmt.Sprintf("%-30s %s", c.Term, c.Status)
			if c.Reason != "" {
				line += "  (" + c.Reason + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var candidatesShowCmd = &cobra.Command{
	Use:   "show <term>",
	Short: "Show one candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.runtime.Orchestrator.GetCandidate(s.ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), c)
		}
		printCandidate(cmd.OutOrStdout(), c)
		return nil
	},
}

var candidatesDeleteCmd = &cobra.Command{
	Use:   "delete <term>",
	Short: "Delete a candidate so the term can be looked up again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.runtime.Orchestrator.DeleteCandidate(s.ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Candidate %q deleted\n", args[0])
		return nil
	},
}

var precomputeCmd = &cobra.Command{
	Use:   "precompute [file]",
	Short: "Store candidates ahead of demand",
	Long: `Precompute looks up many terms concurrently so that unknown ones are
stored as candidates for review.

With --input terms, the file (or stdin) lists one term per line; blank lines
and # comments are skipped. With --input text, the terms are first extracted
from the text.

Example:
  terminus precompute glossary.txt
  terminus precompute --input text --url https://example.com/news`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		input, err := s.readInput(cmd, args)
		if err != nil {
			return err
		}

		var report *workflow.PrecomputeReport
		switch precomputeIn {
		case "terms":
			terms, err := worker.ReadTerms(strings.NewReader(input))
			if err != nil {
				return err
			}
			report = s.runtime.Orchestrator.PrecomputeTerms(s.ctx, terms)
		case "text":
			report, err = s.runtime.Orchestrator.Precompute(s.ctx, input)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown input kind: %s (use terms or text)", precomputeIn)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		printPrecompute(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd, reviewCmd, extractCmd, submitCmd, candidatesCmd, precomputeCmd)
	candidatesCmd.AddCommand(candidatesListCmd, candidatesShowCmd, candidatesDeleteCmd)

	reviewCmd.Flags().BoolVar(&reviewApprove, "approve", false, "promote the candidate to the official glossary")
	reviewCmd.Flags().BoolVar(&reviewReject, "reject", false, "reject the candidate")
	reviewCmd.Flags().StringVar(&reviewReason, "reason", "", "reason for the rejection")

	for _, c := range []*cobra.Command{extractCmd, precomputeCmd} {
		c.Flags().StringVar(&inputURL, "url", "", "fetch the input from this web page instead of a file")
	}
	extractCmd.Flags().StringVar(&extractDomain, "domain", "", "topic domain (defaults to the configured one)")

	submitCmd.Flags().StringVar(&submitDef, "definition", "", "definition text (resolved from Wikipedia when omitted)")

	candidatesListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (under_review, rejected)")

	precomputeCmd.Flags().StringVar(&precomputeIn, "input", "terms", "input kind: terms (one per line) or text")
}

// readInput fetches --url, or reads the named file, or stdin for no
// argument or "-"
func (s *session) readInput(cmd *cobra.Command, args []string) (string, error) {
	if inputURL != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("--url and a file argument are mutually exclusive")
		}
		page, err := workflow.NewFetcher(s.cfg, s.logger).Fetch(s.ctx, inputURL)
		if err != nil {
			return "", err
		}
		s.logger.Info("fetched page",
			zap.String("url", page.FinalURL),
			zap.String("subject", page.Subject),
			zap.Int("bytes", len(page.Body)),
		)
		return page.Body, nil
	}

	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printLookup(w io.Writer, r *workflow.LookupResult) {
	label := string(r.Source)
	if r.Status != "" {
		label += ", " + string(r.Status)
	}
	fmt.Fprintf(w, "%s [%s]\n\n%s\n", r.Term, label, r.Definition)
	if r.Reason != "" {
		fmt.Fprintf(w, "\nRejected: %s\n", r.Reason)
	}
	printFollowUps(w, r.FollowUps)
}

func printCandidate(w io.Writer, c *model.CandidateEntry) {
	fmt.Fprintf(w, "%s [%s]\n\n%s\n", c.Term, c.Status, c.Definition)
	if c.Reason != "" {
		fmt.Fprintf(w, "\nRejected: %s\n", c.Reason)
	}
	printFollowUps(w, c.FollowUps)
}

func printFollowUps(w io.Writer, followUps model.FollowUps) {
	if len(followUps) == 0 {
		return
	}
	fmt.Fprintln(w, "\nFollow-ups:")
	for _, f := range followUps {
		fmt.Fprintf(w, "  - %s (%s)\n", f.Question, f.RelatedTerm)
	}
}

func printPrecompute(w io.Writer, r *workflow.PrecomputeReport) {
	for _, term := range r.Added {
		fmt.Fprintf(w, "✓ %s (added)\n", term)
	}
	for _, term := range r.Existing {
		fmt.Fprintf(w, "· %s (already stored)\n", term)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "✗ %s: %s\n", f.Term, f.Error)
	}
	fmt.Fprintf(w, "\nAdded: %d  Existing: %d  Failed: %d\n", len(r.Added), len(r.Existing), len(r.Failed))
}
