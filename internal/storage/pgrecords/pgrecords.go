// Package pgrecords implements the append-only turn-record sink of spec §6:
// for each completed turn, one record is written containing the user/
// assistant text, tool calls, latency breakdown, and whether the turn was
// interrupted. Persistence is external to the pipeline's hot path — writes
// happen off the state-machine goroutine.
package pgrecords

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LatencyBreakdown captures per-stage timing for one turn, in milliseconds.
type LatencyBreakdown struct {
	STTTTFBMs float64 `json:"stt_ttfb_ms"`
	LLMTTFBMs float64 `json:"llm_ttfb_ms"`
	TTSTTFBMs float64 `json:"tts_ttfb_ms"`
	TotalMs   float64 `json:"total_ms"`
}

// ToolCallRecord is one tool invocation made during the turn.
type ToolCallRecord struct {
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	ResultJSON string `json:"result_json"`
	Err        string `json:"err,omitempty"`
}

// TurnRecord is the append-only unit persisted per completed turn.
type TurnRecord struct {
	CallID        string
	TraceID       string
	StartedAt     time.Time
	CompletedAt   time.Time
	UserText      string
	AssistantText string
	ToolCalls     []ToolCallRecord
	Latency       LatencyBreakdown
	Interrupted   bool
}

// Sink writes TurnRecords to Postgres. It never blocks the pipeline: callers
// should invoke Append from a dedicated goroutine or a buffered worker, per
// spec §5's note that the metrics/history tap must never apply backpressure
// to the data path.
type Sink struct {
	pool *pgxpool.Pool
}

// Open connects a Sink to dsn. Callers should call Close on shutdown.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Sink{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}

// Append inserts one turn record.
func (s *Sink) Append(ctx context.Context, rec TurnRecord) error {
	toolCallsJSON, err := json.Marshal(rec.ToolCalls)
	if err != nil {
		return err
	}
	latencyJSON, err := json.Marshal(rec.Latency)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO turn_records
			(call_id, trace_id, started_at, completed_at, user_text, assistant_text, tool_calls, latency_breakdown, interrupted)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.CallID, rec.TraceID, rec.StartedAt, rec.CompletedAt, rec.UserText, rec.AssistantText, toolCallsJSON, latencyJSON, rec.Interrupted)
	return err
}

// RecentByCall returns the most recent n turn records for callID, newest
// first, for session-log replay (spec §8's idempotence law).
func (s *Sink) RecentByCall(ctx context.Context, callID string, n int) ([]TurnRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT call_id, trace_id, started_at, completed_at, user_text, assistant_text, tool_calls, latency_breakdown, interrupted
		FROM turn_records
		WHERE call_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, callID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var toolCallsJSON, latencyJSON []byte
		if err := rows.Scan(&rec.CallID, &rec.TraceID, &rec.StartedAt, &rec.CompletedAt,
			&rec.UserText, &rec.AssistantText, &toolCallsJSON, &latencyJSON, &rec.Interrupted); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(toolCallsJSON, &rec.ToolCalls); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(latencyJSON, &rec.Latency); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
