package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TreeURI is the resource exposing the whole tree.
const TreeURI = "marktree://tree"

// Engine defines what the MCP server needs from marktree.Engine.
type Engine interface {
	Tree(ctx context.Context) (*domain.Snapshot, error)
	Move(ctx context.Context, itemID string, dest domain.Destination) (*domain.Node, error)
	Drop(ctx context.Context, candidate domain.DragCandidate, target domain.InsertionTarget) (*domain.Node, error)
}

// TreeArgs selects a subtree. An empty FolderID returns every root.
type TreeArgs struct {
	FolderID string `json:"folder_id,omitempty"`
}

// TreeResponse is the structured result of get_tree.
type TreeResponse struct {
	Version uint64         `json:"version" jsonschema_description:"Snapshot version, increases on every refetch"`
	Nodes   []*domain.Node `json:"nodes" jsonschema_description:"Requested nodes with their subtrees"`
}

// MoveArgs are the arguments of move_bookmark.
type MoveArgs struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Index    *int   `json:"index,omitempty"`
}

// DropArgs are the arguments of drop_bookmark.
type DropArgs struct {
	ItemID         string `json:"item_id"`
	SourceParentID string `json:"source_parent_id"`
	SourceIndex    int    `json:"source_index"`
	TargetKind     string `json:"target_kind"`
	FolderID       string `json:"folder_id,omitempty"`
	AtHeader       bool   `json:"at_header,omitempty"`
	ParentID       string `json:"parent_id,omitempty"`
	InsertionIndex int    `json:"insertion_index,omitempty"`
}

// MoveResponse is the structured result of move_bookmark and drop_bookmark.
type MoveResponse struct {
	Outcome string       `json:"outcome" jsonschema_description:"moved, no_op or no_target"`
	Node    *domain.Node `json:"node,omitempty" jsonschema_description:"The moved node"`
}

// Server wraps the marktree Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*serverConfig)

type serverConfig struct {
	version string
	logger  *slog.Logger
}

// WithVersion sets the version advertised to clients.
func WithVersion(v string) Option {
	return func(c *serverConfig) {
		c.version = v
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	cfg := serverConfig{version: "dev", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		engine: engine,
		mcpServer: server.NewMCPServer("marktree-mcp", cfg.version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
		logger: cfg.logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: get_tree
	s.mcpServer.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Get the bookmark tree, or the subtree of one folder."),
		mcp.WithString("folder_id", mcp.Description("Folder to return (optional, defaults to the whole tree)")),
		mcp.WithOutputSchema[TreeResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetTree))

	// TOOL: move_bookmark
	s.mcpServer.AddTool(mcp.NewTool("move_bookmark",
		mcp.WithDescription("Move a bookmark or folder. The index counts siblings after the item is removed from its current place; omit it to append."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item to move")),
		mcp.WithString("parent_id", mcp.Required(), mcp.Description("Destination folder")),
		mcp.WithNumber("index", mcp.Min(0), mcp.Description("Destination index (optional)")),
		mcp.WithOutputSchema[MoveResponse](),
	), mcp.NewStructuredToolHandler(s.handleMove))

	// TOOL: drop_bookmark
	s.mcpServer.AddTool(mcp.NewTool("drop_bookmark",
		mcp.WithDescription("Move an item the way a drag and drop would: the target is a gap between siblings in the current order, or a folder."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Dragged item")),
		mcp.WithString("source_parent_id", mcp.Required(), mcp.Description("Folder the item is in")),
		mcp.WithNumber("source_index", mcp.Required(), mcp.Min(0), mcp.Description("Current index of the item")),
		mcp.WithString("target_kind", mcp.Required(), mcp.Enum(string(domain.TargetInsertionPoint), string(domain.TargetFolder))),
		mcp.WithString("parent_id", mcp.Description("Folder holding the gap (insertionPoint)")),
		mcp.WithNumber("insertion_index", mcp.Min(0), mcp.Description("Gap position, 0 is before the first child (insertionPoint)")),
		mcp.WithString("folder_id", mcp.Description("Target folder (folder)")),
		mcp.WithBoolean("at_header", mcp.Description("Dropped on the folder header, which prepends (folder)")),
		mcp.WithOutputSchema[MoveResponse](),
	), mcp.NewStructuredToolHandler(s.handleDrop))
}

func (s *Server) handleGetTree(ctx context.Context, request mcp.CallToolRequest, args TreeArgs) (TreeResponse, error) {
	snap, err := s.engine.Tree(ctx)
	if err != nil {
		return TreeResponse{}, err
	}
	if args.FolderID == "" {
		return TreeResponse{Version: snap.Version, Nodes: snap.Roots}, nil
	}
	node, ok := snap.Node(args.FolderID)
	if !ok {
		return TreeResponse{}, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, args.FolderID)
	}
	return TreeResponse{Version: snap.Version, Nodes: []*domain.Node{node}}, nil
}

func (s *Server) handleMove(ctx context.Context, request mcp.CallToolRequest, args MoveArgs) (MoveResponse, error) {
	node, err := s.engine.Move(ctx, args.ID, domain.Destination{ParentID: args.ParentID, Index: args.Index})
	if err != nil {
		s.logger.Warn("MCP move_bookmark failed", "item_id", args.ID, "parent_id", args.ParentID, "err", err)
		return MoveResponse{}, err
	}
	return MoveResponse{Outcome: "moved", Node: node}, nil
}

func (s *Server) handleDrop(ctx context.Context, request mcp.CallToolRequest, args DropArgs) (MoveResponse, error) {
	var target domain.InsertionTarget
	switch domain.TargetKind(args.TargetKind) {
	case domain.TargetFolder:
		target = domain.FolderTarget(args.FolderID, args.AtHeader)
	case domain.TargetInsertionPoint:
		target = domain.InsertionPoint(args.ParentID, args.InsertionIndex)
	default:
		return MoveResponse{}, fmt.Errorf("%w: unknown target kind %q", domain.ErrInvalidTarget, args.TargetKind)
	}
	cand := domain.DragCandidate{ItemID: args.ItemID, SourceParentID: args.SourceParentID, SourceIndex: args.SourceIndex}

	node, err := s.engine.Drop(ctx, cand, target)
	switch {
	case err == nil:
		return MoveResponse{Outcome: "moved", Node: node}, nil
	case errors.Is(err, domain.ErrDegenerateMove):
		return MoveResponse{Outcome: "no_op"}, nil
	case errors.Is(err, domain.ErrNoResolvableTarget):
		return MoveResponse{Outcome: "no_target"}, nil
	}
	s.logger.Warn("MCP drop_bookmark failed", "item_id", args.ItemID, "target", target.String(), "err", err)
	return MoveResponse{}, err
}

func (s *Server) registerResources() {
	// EXPOSE: marktree://tree
	s.mcpServer.AddResource(mcp.NewResource(TreeURI, "Bookmark Tree",
		mcp.WithResourceDescription("The whole bookmark tree as JSON"),
		mcp.WithMIMEType("application/json"),
	), s.readTree)
}

func (s *Server) readTree(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	snap, err := s.engine.Tree(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      TreeURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
