package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-logger/glog"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/goliatone/go-crmbridge/core"
)

// Server hosts a Toolset on an MCP SDK server. Every tool result carries the
// envelope as JSON text and as structured content.
type Server struct {
	tools  *Toolset
	server *sdk.Server
	logger glog.Logger
}

type serverConfig struct {
	name         string
	version      string
	instructions string
	logger       glog.Logger
}

type ServerOption func(*serverConfig)

func WithServerInfo(name, version string) ServerOption {
	return func(c *serverConfig) {
		if strings.TrimSpace(name) != "" {
			c.name = strings.TrimSpace(name)
		}
		c.version = strings.TrimSpace(version)
	}
}

func WithInstructions(text string) ServerOption {
	return func(c *serverConfig) {
		c.instructions = strings.TrimSpace(text)
	}
}

func WithLogger(logger glog.Logger) ServerOption {
	return func(c *serverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewServer(tools *Toolset, opts ...ServerOption) (*Server, error) {
	if tools == nil {
		return nil, errors.New("mcp: toolset is required")
	}
	cfg := serverConfig{name: "crmbridge", logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &Server{tools: tools, logger: cfg.logger}
	s.server = sdk.NewServer(
		&sdk.Implementation{Name: cfg.name, Version: cfg.version},
		&sdk.ServerOptions{Instructions: cfg.instructions},
	)
	for _, tool := range tools.Tools() {
		s.server.AddTool(tool, s.toolHandler(tool.Name))
	}
	return s, nil
}

// Serve speaks newline-delimited JSON-RPC on r and w until r reaches EOF or
// ctx ends.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("mcp server ready", "tools", len(s.tools.entries))
	transport := &sdk.IOTransport{
		Reader: io.NopCloser(r),
		Writer: nopWriteCloser{Writer: w},
	}
	err := s.server.Run(ctx, transport)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("mcp: serve: %w", err)
}

// Connect starts a session on transport and returns without waiting for it.
func (s *Server) Connect(ctx context.Context, transport sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, transport, nil)
}

func (s *Server) toolHandler(name string) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		args, err := decodeArguments(raw)
		if err != nil {
			s.logger.Debug("mcp tool arguments rejected", "tool", name, "error", err)
			return toolResult(core.Failure("", core.NewValidationError("arguments must be a JSON object", http.StatusBadRequest)))
		}
		env, ok := s.tools.Call(ctx, name, args)
		if !ok {
			return nil, fmt.Errorf("mcp: unknown tool %q", name)
		}
		s.logger.Debug("mcp tool call", "tool", name, "status", string(env.Status))
		return toolResult(env)
	}
}

// toolResult renders env as a text block plus structured content.
func toolResult(env core.Envelope) (*sdk.CallToolResult, error) {
	text, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode envelope: %w", err)
	}
	structured, err := env.ToMap()
	if err != nil {
		return nil, fmt.Errorf("mcp: encode envelope: %w", err)
	}
	return &sdk.CallToolResult{
		Content:           []sdk.Content{&sdk.TextContent{Text: string(text)}},
		StructuredContent: structured,
		IsError:           !env.IsSuccess(),
	}, nil
}

func decodeArguments(raw json.RawMessage) (Arguments, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Arguments{}, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var args Arguments
	if err := decoder.Decode(&args); err != nil {
		return nil, err
	}
	if args == nil {
		args = Arguments{}
	}
	return args, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
