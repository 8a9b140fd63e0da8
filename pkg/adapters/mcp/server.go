package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/lockstep/internal/config"
	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/dialog"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/scheduler"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DialogResult is the structured output of every dialog tool.
type DialogResult struct {
	Dialog   string                     `json:"dialog,omitempty" jsonschema_description:"The dialog the tool acted on"`
	State    string                     `json:"state" jsonschema_description:"open, closed or reset"`
	Policies map[string]domain.PolicyID `json:"policies" jsonschema_description:"Input policies registered per open modal dialog"`
}

// Dialogs is the dialog surface exposed as tools.
type Dialogs interface {
	OpenDialog(ctx context.Context, id string, dismissal *domain.DismissalPolicy) error
	CloseDialog(ctx context.Context, id string) error
	CloseAllDialogs(ctx context.Context) error
	OnReset(ctx context.Context) error
	Policies() map[string]domain.PolicyID
}

// Inspector exposes the scheduler state as a resource.
type Inspector interface {
	Snapshot() scheduler.Snapshot
}

// Server exposes the dialog manager as an MCP Server.
type Server struct {
	dialogs   Dialogs
	sched     Inspector
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(dialogs Dialogs, sched Inspector, version string, opts ...Option) *Server {
	s := &Server{
		dialogs:   dialogs,
		sched:     sched,
		mcpServer: server.NewMCPServer("lockstep-mcp", strings.TrimSpace(version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	openTool := mcp.NewTool("open_dialog",
		mcp.WithDescription("Open a dialog. Modal dialogs block pointer input to the application until closed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Dialog identifier")),
		mcp.WithBoolean("escape", mcp.Description("Dismiss on Escape")),
		mcp.WithBoolean("window_click", mcp.Description("Dismiss on a click outside the dialog")),
		mcp.WithBoolean("focus", mcp.Description("Dismiss when focus leaves the dialog")),
		mcp.WithOutputSchema[DialogResult](),
	)
	s.mcpServer.AddTool(openTool, mcp.NewStructuredToolHandler(s.handleOpen))

	closeTool := mcp.NewTool("close_dialog",
		mcp.WithDescription("Close a dialog and unregister its input policy, if any."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Dialog identifier")),
		mcp.WithOutputSchema[DialogResult](),
	)
	s.mcpServer.AddTool(closeTool, mcp.NewStructuredToolHandler(s.handleClose))

	closeAllTool := mcp.NewTool("close_all_dialogs",
		mcp.WithDescription("Close every dialog. Registered input policies are left in place."),
		mcp.WithOutputSchema[DialogResult](),
	)
	s.mcpServer.AddTool(closeAllTool, mcp.NewStructuredToolHandler(s.handleCloseAll))

	resetTool := mcp.NewTool("reset",
		mcp.WithDescription("Forget every registered input policy without unregistering it."),
		mcp.WithOutputSchema[DialogResult](),
	)
	s.mcpServer.AddTool(resetTool, mcp.NewStructuredToolHandler(s.handleReset))
}

func (s *Server) handleOpen(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (DialogResult, error) {
	raw, _ := args["id"].(string)
	id, err := dialog.SanitizeID(raw)
	if err != nil {
		return DialogResult{}, err
	}

	var flags map[string]interface{}
	for _, key := range []string{"escape", "window_click", "focus"} {
		if v, ok := args[key]; ok {
			if flags == nil {
				flags = make(map[string]interface{})
			}
			flags[key] = v
		}
	}
	var dismissal *domain.DismissalPolicy
	if flags != nil {
		d, err := config.DecodeDismissal(flags)
		if err != nil {
			return DialogResult{}, err
		}
		dismissal = d
	}

	if err := s.dialogs.OpenDialog(ctx, id, dismissal); err != nil {
		s.logger.Error("MCP open_dialog failed", "dialog", id, "err", err)
		return DialogResult{}, fmt.Errorf("open %s: %w", id, err)
	}
	return DialogResult{Dialog: id, State: "open", Policies: s.dialogs.Policies()}, nil
}

func (s *Server) handleClose(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (DialogResult, error) {
	raw, _ := args["id"].(string)
	id, err := dialog.SanitizeID(raw)
	if err != nil {
		return DialogResult{}, err
	}
	if err := s.dialogs.CloseDialog(ctx, id); err != nil {
		s.logger.Error("MCP close_dialog failed", "dialog", id, "err", err)
		return DialogResult{}, fmt.Errorf("close %s: %w", id, err)
	}
	return DialogResult{Dialog: id, State: "closed", Policies: s.dialogs.Policies()}, nil
}

func (s *Server) handleCloseAll(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (DialogResult, error) {
	if err := s.dialogs.CloseAllDialogs(ctx); err != nil {
		return DialogResult{}, fmt.Errorf("close all: %w", err)
	}
	return DialogResult{State: "closed", Policies: s.dialogs.Policies()}, nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (DialogResult, error) {
	if err := s.dialogs.OnReset(ctx); err != nil {
		return DialogResult{}, fmt.Errorf("reset: %w", err)
	}
	return DialogResult{State: "reset", Policies: s.dialogs.Policies()}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("lockstep://status", "Scheduler grant table",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.sched.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to encode status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "lockstep://status",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource("lockstep://policies", "Registered dialog input policies",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.dialogs.Policies())
		if err != nil {
			return nil, fmt.Errorf("failed to encode policies: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "lockstep://policies",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
