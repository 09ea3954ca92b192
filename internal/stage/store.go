package stage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// Result is the outcome of one finished session.
type Result struct {
	SessionID  string    `json:"sessionId"`
	StageID    string    `json:"stageId"`
	Player     string    `json:"player"`
	Outcome    string    `json:"outcome"`
	Perfect    int       `json:"perfect"`
	Early      int       `json:"early"`
	Late       int       `json:"late"`
	Misses     int       `json:"misses"`
	MaxCombo   int       `json:"maxCombo"`
	Score      int       `json:"score"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Store keeps stages and results as JSONB documents. The tables come from
// the migrations package.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) List(ctx context.Context) ([]Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data) FROM stages ORDER BY number, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	defer rows.Close()

	var stages []Stage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var st Stage
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("decoding stage: %w", err)
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Stage, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM stages WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Stage{}, ErrNotFound
	}
	if err != nil {
		return Stage{}, fmt.Errorf("loading stage %s: %w", id, err)
	}
	var st Stage
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return Stage{}, fmt.Errorf("decoding stage %s: %w", id, err)
	}
	return st, nil
}

// Put validates st and inserts or replaces it.
func (s *Store) Put(ctx context.Context, st Stage) error {
	if err := st.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stages (id, number, data) VALUES (?, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET number = excluded.number, data = excluded.data`,
		st.ID, st.Number, string(data),
	)
	if err != nil {
		return fmt.Errorf("saving stage %s: %w", st.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting stage %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordResult stores r once. Recording the same session twice keeps the
// first result.
func (s *Store) RecordResult(ctx context.Context, r Result) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (session_id, stage_id, score, finished_at, data)
		 VALUES (?, ?, ?, ?, jsonb(?))
		 ON CONFLICT(session_id) DO NOTHING`,
		r.SessionID, r.StageID, r.Score, r.FinishedAt.Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return fmt.Errorf("recording result %s: %w", r.SessionID, err)
	}
	return nil
}

// ListResults returns the best results for a stage, highest score first.
func (s *Store) ListResults(ctx context.Context, stageID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data) FROM results WHERE stage_id = ?
		 ORDER BY score DESC, finished_at ASC LIMIT ?`,
		stageID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	out := []Result{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Result
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping reports whether the database answers. It backs the health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
