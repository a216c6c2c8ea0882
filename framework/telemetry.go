package framework

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EventType categorizes telemetry events.
type EventType string

const (
	EventGraphStart  EventType = "graph_start"
	EventGraphFinish EventType = "graph_finish"
	EventNodeStart   EventType = "node_start"
	EventNodeFinish  EventType = "node_finish"
	EventNodeError   EventType = "node_error"
	EventAgentStart  EventType = "agent_start"
	EventAgentFinish EventType = "agent_finish"
	EventModelCall   EventType = "model_call"
	EventModelResult EventType = "model_result"
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
)

// Event captures structured telemetry data.
type Event struct {
	Type      EventType              `json:"type"`
	NodeID    string                 `json:"node_id,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Telemetry receives execution traces from agents, graphs and models.
type Telemetry interface {
	Emit(event Event)
}

// Emit sends an event when t is non-nil, stamping the time if unset.
func Emit(t Telemetry, event Event) {
	if t == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	t.Emit(event)
}

// MultiplexTelemetry broadcasts events to multiple sinks.
type MultiplexTelemetry struct {
	Sinks []Telemetry
}

// Emit forwards the event to all registered sinks.
func (m MultiplexTelemetry) Emit(event Event) {
	for _, s := range m.Sinks {
		if s != nil {
			s.Emit(event)
		}
	}
}

// JSONFileTelemetry writes events as newline-delimited JSON to a file so
// external tools can tail the stream.
type JSONFileTelemetry struct {
	path string
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewJSONFileTelemetry opens (or creates) the log file.
func NewJSONFileTelemetry(path string) (*JSONFileTelemetry, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONFileTelemetry{
		path: path,
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes the JSON record.
func (j *JSONFileTelemetry) Emit(event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enc != nil {
		_ = j.enc.Encode(event)
	}
}

// Close releases the file handle.
func (j *JSONFileTelemetry) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		j.enc = nil
		return err
	}
	return nil
}

// LoggerTelemetry emits events as debug records on a slog logger.
type LoggerTelemetry struct {
	Logger *slog.Logger
}

// Emit logs the event.
func (t LoggerTelemetry) Emit(event Event) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug(string(event.Type),
		"node", event.NodeID,
		"run", event.RunID,
		"msg", event.Message,
		"meta", event.Metadata,
	)
}

// ProgressKind names the stages agents report while they work.
type ProgressKind string

const (
	ProgressPlan    ProgressKind = "plan"
	ProgressThink   ProgressKind = "think"
	ProgressTool    ProgressKind = "tool"
	ProgressObserve ProgressKind = "observe"
	ProgressJudge   ProgressKind = "judge"
)

// Progress is one user-visible step of an agent run.
type Progress struct {
	Kind        ProgressKind           `json:"kind"`
	Step        int                    `json:"step,omitempty"`
	Thought     string                 `json:"thought,omitempty"`
	ActionKind  string                 `json:"action_kind,omitempty"`
	ActionName  string                 `json:"action_name,omitempty"`
	ActionSay   string                 `json:"action_say,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	Args        map[string]interface{} `json:"args,omitempty"`
	Observation string                 `json:"observation,omitempty"`
	Decision    string                 `json:"decision,omitempty"`
	Final       string                 `json:"final,omitempty"`
	Text        string                 `json:"text,omitempty"`
}

// ProgressFunc receives progress updates. Implementations must not block
// for long; agents call them inline.
type ProgressFunc func(Progress)

// Notify calls fn when it is non-nil.
func (fn ProgressFunc) Notify(p Progress) {
	if fn != nil {
		fn(p)
	}
}
