// Package mcp exposes the AI gateway over a line-delimited JSON-RPC 2.0
// stdio transport following the Model Context Protocol. The transport only
// serializes plain gateway values; all gateway semantics live in the packages
// it wires together.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"ragex/internal/aicache"
	"ragex/internal/enrich"
	"ragex/internal/rag"
	"ragex/internal/usage"
)

// maxLineBytes bounds one JSON-RPC message.
const maxLineBytes = 4 * 1024 * 1024

// Server is a minimal MCP server over stdio.
type Server struct {
	pipeline    *rag.Pipeline
	explainer   *enrich.ErrorExplainer
	commentator *enrich.RefactorCommentator
	refiner     *enrich.DeadCodeRefiner
	tracker     *usage.Tracker
	cache       *aicache.Cache
	version     string
	logger      *slog.Logger
}

// NewServer creates an MCP server over the gateway components.
func NewServer(pipeline *rag.Pipeline, explainer *enrich.ErrorExplainer, commentator *enrich.RefactorCommentator, refiner *enrich.DeadCodeRefiner, tracker *usage.Tracker, cache *aicache.Cache, version string, logger *slog.Logger) *Server {
	return &Server{
		pipeline:    pipeline,
		explainer:   explainer,
		commentator: commentator,
		refiner:     refiner,
		tracker:     tracker,
		cache:       cache,
		version:     version,
		logger:      logger,
	}
}

// Run reads JSON-RPC requests from r line by line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			// notification, no response
			continue
		}
		s.write(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}
	case "tools/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: allTools}}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: "2024-11-05",
			ServerInfo:      ServerInfo{Name: "ragex", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid params"},
		}
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  errorResult(fmt.Sprintf("unknown tool: %s", params.Name)),
		}
	}

	s.logger.Debug("Tool call", "tool", params.Name)
	result := handler(ctx, s, params.Arguments)
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err.Error())
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Error("Failed to write response", "error", err.Error())
	}
}
