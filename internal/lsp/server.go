package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapcode/internal/config"
	"github.com/leapstack-labs/leapcode/internal/engine"
)

// EngineFactory creates the engine for a workspace root.
type EngineFactory func(root string, logger *slog.Logger) (*engine.Engine, error)

// Server implements the Language Server Protocol for leapcode workspaces.
type Server struct {
	newEngine EngineFactory
	eng       *engine.Engine
	engineErr error
	index     *DocumentIndex

	// Workspace context
	root        string
	initialized bool

	// I/O
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex

	// Logging
	logger *slog.Logger

	// Shutdown state
	shutdown   bool
	shutdownMu sync.RWMutex
	exit       func(code int)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEngineFactory replaces the function that loads the workspace on initialize.
func WithEngineFactory(f EngineFactory) Option {
	return func(s *Server) {
		s.newEngine = f
	}
}

// WithExit replaces os.Exit for the exit notification.
func WithExit(exit func(code int)) Option {
	return func(s *Server) {
		s.exit = exit
	}
}

// NewServer creates a new LSP server instance.
func NewServer(reader io.Reader, writer io.Writer, opts ...Option) *Server {
	s := &Server{
		newEngine: LoadEngine,
		reader:    bufio.NewReader(reader),
		writer:    writer,
		logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		exit:      os.Exit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadEngine creates an engine for root and loads its leapcode.yaml.
// Compile history is not recorded for editor compiles.
func LoadEngine(root string, logger *slog.Logger) (*engine.Engine, error) {
	cfg, err := config.LoadFromDir(root)
	if err != nil {
		return nil, err
	}
	watch := cfg != nil && cfg.WatchSearchPaths
	eng, err := engine.New(engine.Config{
		WorkingDir:       root,
		Logger:           logger,
		WatchSearchPaths: watch,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.LoadManifest(cfg); err != nil {
		_ = eng.Close()
		return nil, err
	}
	return eng, nil
}

// Run starts the server's main loop, processing JSON-RPC messages.
func (s *Server) Run() error {
	s.logger.Info("leapcode LSP server starting...")

	for {
		s.shutdownMu.RLock()
		if s.shutdown {
			s.shutdownMu.RUnlock()
			return nil
		}
		s.shutdownMu.RUnlock()

		msg, err := s.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("Client disconnected")
				s.closeEngine()
				return nil
			}
			s.logger.Error("Error reading message", "error", err)
			continue
		}

		if err := s.handleMessage(msg); err != nil {
			s.logger.Error("Error handling message", "method", msg.Method, "error", err)
		}
	}
}

// JSONRPCMessage represents a JSON-RPC 2.0 message.
type JSONRPCMessage struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *JSONRPCError    `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes.
const (
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
)

// readMessage reads a JSON-RPC message from the input stream.
func (s *Server) readMessage() (*JSONRPCMessage, error) {
	var contentLength int
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			break // End of headers
		}

		if strings.HasPrefix(line, "Content-Length: ") {
			contentLength, err = strconv.Atoi(strings.TrimPrefix(line, "Content-Length: "))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length: %w", err)
			}
		}
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		return nil, fmt.Errorf("error reading body: %w", err)
	}

	var msg JSONRPCMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("error parsing message: %w", err)
	}
	return &msg, nil
}

// sendResponse sends a JSON-RPC response.
func (s *Server) sendResponse(id *json.RawMessage, result any, err *JSONRPCError) {
	msg := JSONRPCMessage{
		JSONRPC: "2.0",
		ID:      id,
	}
	if err != nil {
		msg.Error = err
	} else {
		resultBytes, _ := json.Marshal(result)
		msg.Result = resultBytes
	}
	s.writeMessage(&msg)
}

// sendNotification sends a JSON-RPC notification (no ID).
func (s *Server) sendNotification(method string, params any) {
	msg := JSONRPCMessage{
		JSONRPC: "2.0",
		Method:  method,
	}
	if params != nil {
		paramsBytes, _ := json.Marshal(params)
		msg.Params = paramsBytes
	}
	s.writeMessage(&msg)
}

// writeMessage writes a JSON-RPC message to the output stream.
func (s *Server) writeMessage(msg *JSONRPCMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Error marshaling message", "error", err)
		return
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	_, _ = s.writer.Write([]byte(header))
	_, _ = s.writer.Write(body)
}

// handleMessage dispatches a message to the appropriate handler.
func (s *Server) handleMessage(msg *JSONRPCMessage) error {
	s.logger.Debug("Received", "method", msg.Method)

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return s.handleInitialized(msg)
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		s.logger.Info("Server exit")
		s.closeEngine()
		s.exit(0)
		return nil
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/completion":
		return s.handleCompletion(msg)
	case "textDocument/hover":
		return s.handleHover(msg)
	default:
		if msg.ID != nil {
			s.sendResponse(msg.ID, nil, &JSONRPCError{
				Code:    codeMethodNotFound,
				Message: "Method not found: " + msg.Method,
			})
		}
		return nil
	}
}

// --- Lifecycle handlers ---

func (s *Server) handleInitialize(msg *JSONRPCMessage) error {
	var params InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: codeInvalidParams, Message: err.Error()})
		return err
	}

	s.root = URIToPath(params.RootURI)
	if s.root == "" {
		s.root = params.RootPath
	}
	s.logger.Info("Workspace root", "path", s.root)

	s.index = NewDocumentIndex(s.root)
	s.eng, s.engineErr = s.newEngine(s.root, s.logger)
	if s.engineErr != nil {
		s.logger.Warn("Failed to load workspace", "error", s.engineErr)
	} else {
		s.index.Rebuild(s.eng)
	}

	result := InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindIncremental,
				Save:      &SaveOptions{IncludeText: true},
			},
			CompletionProvider: &CompletionOptions{TriggerCharacters: []string{"."}},
			HoverProvider:      true,
		},
		ServerInfo: &ServerInfo{Name: "leapcode"},
	}
	s.sendResponse(msg.ID, result, nil)
	return nil
}

func (s *Server) handleInitialized(_ *JSONRPCMessage) error {
	s.initialized = true
	s.logger.Info("Server initialized")

	if s.engineErr != nil {
		s.sendNotification("window/showMessage", &ShowMessageParams{
			Type:    MessageTypeError,
			Message: fmt.Sprintf("Failed to load leapcode.yaml: %v", s.engineErr),
		})
	}
	return nil
}

func (s *Server) handleShutdown(msg *JSONRPCMessage) error {
	s.shutdownMu.Lock()
	s.shutdown = true
	s.shutdownMu.Unlock()

	s.closeEngine()
	s.sendResponse(msg.ID, nil, nil)
	s.logger.Info("Server shutdown")
	return nil
}

func (s *Server) closeEngine() {
	if s.eng != nil {
		_ = s.eng.Close()
	}
}

// --- Document handlers ---

func (s *Server) handleDidOpen(msg *JSONRPCMessage) error {
	var params DidOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	ref, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil
	}
	s.eng.OpenDocument(ref.Name, ref.Project)
	s.logger.Debug("Opened", "uri", ref.URI, "project", ref.Project)

	// The editor's text wins over what was read from disk
	if current, err := s.eng.GetBuffer(ref.Name, ref.Project); err == nil && current != params.TextDocument.Text {
		if err := s.eng.ReplaceBuffer(ref.ID, params.TextDocument.Text); err != nil {
			return err
		}
	}

	s.publishDiagnostics(ref.Project)
	return nil
}

func (s *Server) handleDidClose(msg *JSONRPCMessage) error {
	var params DidCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	ref, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil
	}
	s.eng.CloseDocument(ref.Name, ref.Project)
	s.logger.Debug("Closed", "uri", ref.URI)
	return nil
}

func (s *Server) handleDidChange(msg *JSONRPCMessage) error {
	var params DidChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	ref, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil
	}
	for _, change := range params.ContentChanges {
		if err := s.applyChange(ref, change); err != nil {
			return fmt.Errorf("apply change to %s: %w", ref.URI, err)
		}
	}

	s.publishDiagnostics(ref.Project)
	return nil
}

func (s *Server) applyChange(ref DocumentRef, change TextDocumentContentChangeEvent) error {
	if change.Range == nil {
		return s.eng.ReplaceBuffer(ref.ID, change.Text)
	}
	doc, err := s.eng.Document(ref.Name, ref.Project)
	if err != nil {
		return err
	}
	return s.eng.ChangeBuffer(ref.ID, toWorkspaceRange(doc, *change.Range), change.Text)
}

func (s *Server) handleDidSave(msg *JSONRPCMessage) error {
	var params DidSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	ref, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil
	}
	if params.Text != "" && s.eng.IsDocumentOpen(ref.Name, ref.Project) {
		if err := s.eng.ReplaceBuffer(ref.ID, params.Text); err != nil {
			return err
		}
	}
	s.logger.Debug("Saved", "uri", ref.URI)

	s.publishDiagnostics(ref.Project)
	return nil
}

// lookup returns the workspace document behind a URI. Files outside
// every project are ignored.
func (s *Server) lookup(uri string) (DocumentRef, bool) {
	if s.eng == nil || s.index == nil {
		return DocumentRef{}, false
	}
	ref, ok := s.index.Lookup(uri)
	if !ok {
		s.logger.Debug("Document is not part of any project", "uri", uri)
	}
	return ref, ok
}

// --- Feature handlers ---

func (s *Server) handleCompletion(msg *JSONRPCMessage) error {
	var params CompletionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: codeInvalidParams, Message: err.Error()})
		return err
	}

	items := s.getCompletions(params)
	s.sendResponse(msg.ID, &CompletionList{Items: items}, nil)
	return nil
}

func (s *Server) handleHover(msg *JSONRPCMessage) error {
	var params HoverParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: codeInvalidParams, Message: err.Error()})
		return err
	}

	s.sendResponse(msg.ID, s.getHover(params), nil)
	return nil
}
