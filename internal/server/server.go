// Package server exposes the workflow as MCP tools.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/terminus/internal/workflow"
)

// Transport names accepted by Serve
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// New creates an MCP server with every tool registered
func New(orch *workflow.Orchestrator, version string, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tools{Orchestrator: orch, Logger: logger}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "terminus",
		Version: version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "lookup_definition",
		Description: "Look up a term. Returns the official entry, else the stored candidate, else resolves and stores a new candidate for review",
	}, t.LookupDefinition)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "review_candidate",
		Description: "Approve a candidate (promotes it to the official store) or reject it with a reason (kept as rejected)",
	}, t.ReviewCandidate)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "extract_terms",
		Description: "Extract the domain terms found in a text; every candidate is critiqued independently",
	}, t.ExtractTerms)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "submit_candidate",
		Description: "Submit a term as a new candidate, with an optional definition (resolved when omitted)",
	}, t.SubmitCandidate)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_candidate",
		Description: "Get a candidate entry, including its status and rejection reason",
	}, t.GetCandidate)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_candidates",
		Description: "List candidates, optionally filtered by status (under_review, rejected)",
	}, t.ListCandidates)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_candidate",
		Description: "Delete a candidate so the term can be looked up or submitted again",
	}, t.DeleteCandidate)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "precompute_terms",
		Description: "Store candidates ahead of demand for the given terms, or for the terms extracted from a text",
	}, t.PrecomputeTerms)

	return srv
}

// Serve runs srv on the named transport until ctx is done. addr is the
// listen address of the HTTP transport.
func Serve(ctx context.Context, srv *mcp.Server, transport, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch transport {
	case TransportStdio, "":
		logger.Info("MCP server starting", zap.String("transport", TransportStdio))
		return srv.Run(ctx, &mcp.StdioTransport{})

	case TransportHTTP:
		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return srv
		}, nil)
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("MCP server listening", zap.String("transport", TransportHTTP), zap.String("addr", addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
		return g.Wait()

	default:
		return fmt.Errorf("unknown transport: %s (use %s or %s)", transport, TransportStdio, TransportHTTP)
	}
}
