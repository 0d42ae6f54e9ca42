// Package server exposes the dispatcher over the Model Context Protocol.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/flynn-ai/corrode/internal/dispatch"
	"github.com/flynn-ai/corrode/internal/logging"
	"github.com/flynn-ai/corrode/internal/metrics"
	"github.com/flynn-ai/corrode/internal/prompts"
	"github.com/flynn-ai/corrode/pkg/protocol"
)

const instructions = "Code-assistance tools for Rust projects: read, write and patch files, " +
	"extract signatures, run commands in a persistent shell session, check the build with cargo " +
	"and look up crates on crates.io and docs.rs. Get the tools_guide prompt for the recommended workflow."

// shutdownTimeout bounds the graceful stop of the HTTP listener.
const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Name    string
	Version string

	// Metrics, when set, is served at /metrics in HTTP mode.
	Metrics *metrics.Metrics
}

// Server wraps the MCP server with corrode's dispatcher.
type Server struct {
	dispatcher *dispatch.Dispatcher
	prompts    *prompts.Builder
	metrics    *metrics.Metrics
	server     *mcp.Server
	logger     *slog.Logger
}

// New creates the MCP server and registers every tool and prompt.
func New(d *dispatch.Dispatcher, p *prompts.Builder, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Name == "" {
		opts.Name = "corrode"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		dispatcher: d,
		prompts:    p,
		metrics:    opts.Metrics,
		logger:     logger,
	}
	impl := &mcp.Implementation{Name: opts.Name, Version: opts.Version}
	s.server = mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions})
	s.registerTools()
	s.registerPrompts()
	s.server.AddReceivingMiddleware(s.routeUnknownTools)
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// registerTools adds the catalog in order. Arguments are passed through raw;
// the dispatcher validates them.
func (s *Server) registerTools() {
	for _, schema := range s.dispatcher.Registry().List() {
		s.server.AddTool(&mcp.Tool{
			Name:        schema.Name,
			Description: schema.Description,
			InputSchema: schema.InputSchema(),
		}, s.callTool)
	}
}

func (s *Server) callTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.dispatcher.Handle(ctx, protocol.ToolCall{
		Name: req.Params.Name,
		Raw:  req.Params.Arguments,
	})
	return toCallToolResult(res), nil
}

// routeUnknownTools hands calls naming no registered tool to the dispatcher,
// so the client gets a TOOL_NOT_FOUND result instead of a JSON-RPC error.
func (s *Server) routeUnknownTools(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		if method != "tools/call" {
			return next(ctx, method, req)
		}
		call, ok := req.(*mcp.CallToolRequest)
		if !ok {
			return next(ctx, method, req)
		}
		if _, _, known := s.dispatcher.Registry().Lookup(call.Params.Name); known {
			return next(ctx, method, req)
		}
		res, err := s.callTool(ctx, call)
		return res, err
	}
}

// toCallToolResult maps the result blocks onto MCP text content. JSON blocks
// and error details travel as canonical JSON text.
func toCallToolResult(res *protocol.ToolResult) *mcp.CallToolResult {
	out := &mcp.CallToolResult{IsError: res.IsError, Content: []mcp.Content{}}
	for _, block := range res.Content {
		switch block.Type {
		case protocol.ContentJSON:
			out.Content = append(out.Content, &mcp.TextContent{Text: canonical(block.Data)})
		default:
			out.Content = append(out.Content, &mcp.TextContent{Text: block.Text})
		}
	}
	if res.Error != nil {
		out.Content = append(out.Content, &mcp.TextContent{Text: canonical(res.Error)})
	}
	return out
}

func canonical(v any) string {
	data, err := protocol.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data[:len(data)-1])
}

func (s *Server) registerPrompts() {
	if s.prompts == nil {
		return
	}
	for _, p := range s.prompts.List() {
		args := make([]*mcp.PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, &mcp.PromptArgument{Name: a.Name, Description: a.Description})
		}
		description := p.Description
		s.server.AddPrompt(&mcp.Prompt{
			Name:        p.Name,
			Description: description,
			Arguments:   args,
		}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			text, err := s.prompts.Render(req.Params.Name, req.Params.Arguments)
			if err != nil {
				return nil, err
			}
			return &mcp.GetPromptResult{
				Description: description,
				Messages: []*mcp.PromptMessage{
					{Role: "user", Content: &mcp.TextContent{Text: text}},
				},
			}, nil
		})
	}
}

// RunStdio serves one client over stdin/stdout until it disconnects or ctx
// is cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	err := s.server.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler returns the HTTP handler: streamable MCP at /mcp, metrics at
// /metrics when enabled, and a liveness probe at /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
	mux.Handle("/mcp", mcpHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// ServeHTTP listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts HTTP connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("serving MCP over HTTP", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
