package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
)

// JSON-RPC methods served by RPCServer.
const (
	MethodAsk       = "ask"
	MethodToolsList = "tools.list"
	MethodReset     = "reset"
	// MethodProgress is the server-to-client notification carrying one
	// framework.Progress event while an ask runs.
	MethodProgress = "progress"
)

// RPCServer answers agent requests as JSON-RPC 2.0 over a Content-Length
// framed stream, usually stdio. Unlike the HTTP API, a connection keeps one
// conversation per mode until the client resets it.
type RPCServer struct {
	Runtime *agents.Runtime
	Logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]agents.Session
}

// RPCAskParams are the params of "ask".
type RPCAskParams struct {
	Mode      string `json:"mode"`
	Prompt    string `json:"prompt"`
	Citations bool   `json:"citations,omitempty"`
	// Progress asks for "progress" notifications during the run.
	Progress bool `json:"progress,omitempty"`
}

// RPCModeParams carry an optional mode.
type RPCModeParams struct {
	Mode string `json:"mode,omitempty"`
}

// RPCResetResult lists the conversations that were cleared.
type RPCResetResult struct {
	Reset []string `json:"reset"`
}

// NewRPCServer builds a server over rt.
func NewRPCServer(rt *agents.Runtime, logger *slog.Logger) *RPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCServer{Runtime: rt, Logger: logger, sessions: make(map[string]agents.Session)}
}

// ServeStdio serves on the process's stdin and stdout.
func (s *RPCServer) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return s.ServeStream(ctx, &stdioReadWriteCloser{reader: in, writer: out})
}

// ServeStream serves one connection until the peer disconnects or ctx ends.
func (s *RPCServer) ServeStream(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle).SuppressErrClosed())
	s.Logger.Info("JSON-RPC server ready")
	select {
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	case <-conn.DisconnectNotify():
		return nil
	}
}

func (s *RPCServer) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case MethodAsk:
		var params RPCAskParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		return s.ask(ctx, conn, params)
	case MethodToolsList:
		var params RPCModeParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		return s.toolsList(params)
	case MethodReset:
		var params RPCModeParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		return s.reset(params)
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled: " + req.Method}
	}
}

func decodeParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return nil
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func invalidParams(err error) error {
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
}

func (s *RPCServer) session(mode agents.Mode, citations bool) (agents.Session, error) {
	key := string(mode)
	if citations {
		key += "+citations"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, nil
	}
	session, err := s.Runtime.NewSession(mode, agents.SessionOptions{Citations: citations})
	if err != nil {
		return nil, err
	}
	s.sessions[key] = session
	return session, nil
}

func (s *RPCServer) ask(ctx context.Context, conn *jsonrpc2.Conn, params RPCAskParams) (*AskResponse, error) {
	mode, err := agents.ParseMode(params.Mode)
	if err != nil {
		return nil, invalidParams(err)
	}
	session, err := s.session(mode, params.Citations)
	if err != nil {
		return nil, err
	}
	var progress framework.ProgressFunc
	if params.Progress {
		progress = func(p framework.Progress) {
			if err := conn.Notify(ctx, MethodProgress, p); err != nil {
				s.Logger.Debug("progress notify failed", "error", err)
			}
		}
	}
	res, err := session.AskWithProgress(ctx, params.Prompt, progress)
	if err != nil {
		if errors.Is(err, framework.ErrEmptyPrompt) {
			return nil, invalidParams(err)
		}
		s.Logger.Error("rpc ask failed", "mode", mode, "error", err)
		return nil, err
	}
	return &AskResponse{Content: res.Content, Reasoning: res.Reasoning, Usage: res.Usage, Transcript: res.Transcript}, nil
}

func (s *RPCServer) toolsList(params RPCModeParams) ([]ToolInfo, error) {
	mode, err := agents.ParseMode(params.Mode)
	if err != nil {
		return nil, invalidParams(err)
	}
	registry, err := s.Runtime.Registry(mode)
	if err != nil {
		return nil, err
	}
	infos := make([]ToolInfo, 0, registry.Len())
	for _, tool := range registry.All() {
		infos = append(infos, ToolInfo{Name: tool.Name(), Description: tool.Description(), Parameters: tool.Schema()})
	}
	return infos, nil
}

// reset clears one mode's conversations, or all of them without a mode.
func (s *RPCServer) reset(params RPCModeParams) (*RPCResetResult, error) {
	var only agents.Mode
	if params.Mode != "" {
		mode, err := agents.ParseMode(params.Mode)
		if err != nil {
			return nil, invalidParams(err)
		}
		only = mode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := []string{}
	for key, session := range s.sessions {
		if only != "" && key != string(only) && key != string(only)+"+citations" {
			continue
		}
		session.Reset()
		cleared = append(cleared, key)
	}
	sort.Strings(cleared)
	return &RPCResetResult{Reset: cleared}, nil
}

type stdioReadWriteCloser struct {
	reader io.Reader
	writer io.Writer
}

func (s *stdioReadWriteCloser) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *stdioReadWriteCloser) Write(p []byte) (int, error) { return s.writer.Write(p) }

func (s *stdioReadWriteCloser) Close() error {
	var firstErr error
	for _, v := range []interface{}{s.reader, s.writer} {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
