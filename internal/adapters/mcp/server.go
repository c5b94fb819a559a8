package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
	"github.com/kirillkom/smartdoc-agent/internal/core/usecase"
)

const serverName = "smartdoc-agent"

type SessionService interface {
	Start(ctx context.Context, credential string) (*domain.Session, usecase.AnalyzerStatus, error)
	ProcessUploads(ctx context.Context, sessionID string, uploads []usecase.Upload) ([]usecase.UploadOutcome, error)
	Analyze(ctx context.Context, sessionID, documentName string, mode domain.AnalysisMode, question string, includeMetadata bool) (domain.AnalysisResult, error)
	Clear(ctx context.Context, sessionID string) error
	End(ctx context.Context, sessionID string) error
}

type Deps struct {
	Sessions   SessionService
	Ingestor   ports.DocumentIngestor
	Credential string

	// Root confines tool paths to one directory tree when set.
	Root    string
	Version string
	Logger  *slog.Logger
}

// Server exposes the analyzer as MCP tools. Every analyze_pdf call runs in
// one long-lived session, so the provider sees one client and one pacing
// schedule for the life of the process.
type Server struct {
	deps   Deps
	logger *slog.Logger
	mcp    *server.MCPServer

	mu        sync.Mutex
	sessionID string
}

func NewServer(deps Deps) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		logger: logger,
		mcp: server.NewMCPServer(serverName, deps.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	modes := make([]string, 0, len(domain.AnalysisModes))
	for _, mode := range domain.AnalysisModes {
		modes = append(modes, string(mode))
	}
	s.mcp.AddTool(mcp.NewTool("analyze_pdf",
		mcp.WithDescription("Extract the text of a local PDF and analyze it with the configured model."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the PDF file")),
		mcp.WithString("mode", mcp.Enum(modes...), mcp.Description("Analysis mode, summary by default")),
		mcp.WithString("question", mcp.Description("Question to answer, required for custom mode")),
	), s.analyzePDF)
	s.mcp.AddTool(mcp.NewTool("inspect_pdf",
		mcp.WithDescription("Extract text statistics and metadata from a local PDF without calling the model."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the PDF file")),
	), s.inspectPDF)
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Close ends the tool session, if one was started.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == "" {
		return nil
	}
	id := s.sessionID
	s.sessionID = ""
	return s.deps.Sessions.End(ctx, id)
}

// session returns the tool session, starting it on first use. A session
// whose analyzer is not ready is ended so a later call can try again.
// Callers hold s.mu.
func (s *Server) session(ctx context.Context) (string, *usecase.AnalyzerStatus, error) {
	if s.sessionID != "" {
		return s.sessionID, nil, nil
	}
	session, status, err := s.deps.Sessions.Start(ctx, s.deps.Credential)
	if err != nil {
		return "", nil, fmt.Errorf("start session: %w", err)
	}
	if status.State != usecase.StateReady {
		_ = s.deps.Sessions.End(context.WithoutCancel(ctx), session.ID)
		return "", &status, nil
	}
	s.sessionID = session.ID
	return s.sessionID, nil, nil
}

func (s *Server) analyzePDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	upload, err := s.readUpload(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := domain.ParseMode(request.GetString("mode", string(domain.ModeSummary)))
	question := request.GetString("question", "")

	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID, failed, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return mcp.NewToolResultError(failed.Message), nil
	}
	// Each call analyzes only its own document.
	defer func() { _ = s.deps.Sessions.Clear(context.WithoutCancel(ctx), sessionID) }()

	outcomes, err := s.deps.Sessions.ProcessUploads(ctx, sessionID, []usecase.Upload{upload})
	if err != nil {
		return nil, fmt.Errorf("process upload: %w", err)
	}
	if outcomes[0].Record == nil {
		return mcp.NewToolResultError(outcomes[0].Error), nil
	}

	result, err := s.deps.Sessions.Analyze(ctx, sessionID, upload.Name, mode, question, false)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	s.logger.Info("mcp_tool_call",
		"tool", "analyze_pdf",
		"document", upload.Name,
		"mode", string(result.Mode),
		"succeeded", result.Succeeded,
	)
	if !result.Succeeded {
		return mcp.NewToolResultError(result.Text), nil
	}
	return mcp.NewToolResultText(result.Text), nil
}

func (s *Server) inspectPDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	upload, err := s.readUpload(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	record, err := s.deps.Ingestor.Ingest(ctx, upload.Data, upload.Name)
	if err != nil {
		kind := domain.KindOf(err)
		return mcp.NewToolResultError(usecase.UserMessage(kind, err.Error())), nil
	}
	record.Text = ""
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) readUpload(path string) (usecase.Upload, error) {
	resolved, err := s.resolve(path)
	if err != nil {
		return usecase.Upload{}, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return usecase.Upload{}, fmt.Errorf("read %s: %w", path, err)
	}
	return usecase.Upload{Name: filepath.Base(resolved), Data: data}, nil
}

func (s *Server) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if s.deps.Root == "" {
		return filepath.Clean(path), nil
	}
	root, err := filepath.Abs(s.deps.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the allowed directory", path)
	}
	return path, nil
}
