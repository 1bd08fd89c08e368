package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes one line per event, either human-readable text or
// JSONL, to an io.Writer.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter writes to writer (stdout if nil). jsonMode selects JSONL
// output over the default text format.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		VerificationID string         `json:"verification_id"`
		Stage          string         `json:"stage"`
		Msg            string         `json:"msg"`
		Meta           map[string]any `json:"meta,omitempty"`
	}{event.VerificationID, event.Stage, event.Msg, event.Meta})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] verification_id=%s msg=%s", event.Stage, event.VerificationID, event.Msg)
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously with no internal buffer.
func (l *LogEmitter) Flush(_ context.Context) error { return nil }
