package init

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// EventType identifies the type of initialization event.
type EventType string

const (
	EventInitStarted     EventType = "init.started"
	EventInitCompleted   EventType = "init.completed"
	EventInitFailed      EventType = "init.failed"
	EventStateChange     EventType = "init.state_change"
	EventSlotCreated     EventType = "init.slot_created"
	EventOriginAdvanced  EventType = "init.origin_advanced"
	EventSchemaDumped    EventType = "init.schema_dumped"
	EventSchemaRestored  EventType = "init.schema_restored"
	EventTableCopied     EventType = "init.table_copied"
	EventRollbackWarning EventType = "init.rollback_warning"
)

// InitEvent represents a structured initialization event for logging.
type InitEvent struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         string         `json:"level"`
	Event         EventType      `json:"event"`
	NodeID        string         `json:"node_id,omitempty"`
	OriginNode    string         `json:"origin_node,omitempty"`
	Table         string         `json:"table,omitempty"`
	BytesCopied   int64          `json:"bytes_copied,omitempty"`
	DurationMs    int64          `json:"duration_ms,omitempty"`
	PreviousState models.Status  `json:"previous_state,omitempty"`
	NewState      models.Status  `json:"new_state,omitempty"`
	Error         string         `json:"error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// Logger provides structured logging for initialization events.
type Logger struct {
	slog *slog.Logger
}

// NewLogger creates a new initialization event logger.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{slog: logger}
}

// Log emits a structured initialization event.
func (l *Logger) Log(event InitEvent) {
	event.Timestamp = time.Now()
	if event.Level == "" {
		event.Level = "info"
	}

	data, _ := json.Marshal(event)

	switch event.Level {
	case "error":
		l.slog.Error(string(event.Event), "event", string(data))
	case "warn":
		l.slog.Warn(string(event.Event), "event", string(data))
	case "debug":
		l.slog.Debug(string(event.Event), "event", string(data))
	default:
		l.slog.Info(string(event.Event), "event", string(data))
	}
}

// LogInitStarted logs the start of an initialization run.
func (l *Logger) LogInitStarted(nodeID, originNode string, sets []string) {
	l.Log(InitEvent{
		Event:      EventInitStarted,
		NodeID:     nodeID,
		OriginNode: originNode,
		Details:    map[string]any{"replication_sets": sets},
	})
}

// LogInitCompleted logs successful completion of initialization.
func (l *Logger) LogInitCompleted(nodeID string, durationMs int64) {
	l.Log(InitEvent{
		Event:      EventInitCompleted,
		NodeID:     nodeID,
		DurationMs: durationMs,
	})
}

// LogInitFailed logs initialization failure.
func (l *Logger) LogInitFailed(nodeID string, err error) {
	l.Log(InitEvent{
		Level:  "error",
		Event:  EventInitFailed,
		NodeID: nodeID,
		Error:  err.Error(),
	})
}

// LogStateChange logs a persisted status transition.
func (l *Logger) LogStateChange(nodeID string, previous, next models.Status) {
	l.Log(InitEvent{
		Event:         EventStateChange,
		NodeID:        nodeID,
		PreviousState: previous,
		NewState:      next,
	})
}

// LogTableCopied logs completion of a single table copy.
func (l *Logger) LogTableCopied(nodeID, table string, bytes int64, durationMs int64) {
	l.Log(InitEvent{
		Event:       EventTableCopied,
		NodeID:      nodeID,
		Table:       table,
		BytesCopied: bytes,
		DurationMs:  durationMs,
	})
}
