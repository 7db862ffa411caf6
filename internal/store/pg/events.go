package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orgcore.org/internal/event"
)

// EventStore persists events in a single append-only table. Versions are
// assigned inside the insert statement and guarded by the unique index on
// (stream_type, stream_id, stream_version): two emitters racing on one stream
// collide on the index, and the loser retries against the new head.
type EventStore struct {
	db *sql.DB
}

var _ event.Store = (*EventStore)(nil)

const appendAttempts = 5

func (s *EventStore) Append(ctx context.Context, e *event.Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		err := s.db.QueryRowContext(ctx, `
			insert into events(id, stream_id, stream_type, stream_version, event_type, data, metadata, created_at)
			values ($1, $2, $3,
				(select coalesce(max(stream_version), 0) + 1 from events where stream_type = $3 and stream_id = $2),
				$4, $5, $6, $7)
			returning stream_version
		`, e.ID, e.StreamID, e.StreamType, e.EventType, []byte(e.Data), meta, e.CreatedAt).Scan(&e.StreamVersion)
		if err == nil {
			return nil
		}
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == uniqueViolation {
			continue
		}
		return err
	}
	return event.ErrVersionConflict
}

const eventColumns = `id, stream_id, stream_type, stream_version, event_type, data, metadata,
	created_at, processed_at, processing_error, retry_count`

func scanEvent(row interface{ Scan(...any) error }) (event.Event, error) {
	var (
		e         event.Event
		data      []byte
		meta      []byte
		processed sql.NullTime
		procErr   sql.NullString
	)
	err := row.Scan(&e.ID, &e.StreamID, &e.StreamType, &e.StreamVersion, &e.EventType,
		&data, &meta, &e.CreatedAt, &processed, &procErr, &e.RetryCount)
	if err != nil {
		return event.Event{}, err
	}
	e.Data = json.RawMessage(data)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return event.Event{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.ProcessedAt = timePtr(processed)
	if procErr.Valid {
		e.ProcessingError = procErr.String
	}
	return e, nil
}

func (s *EventStore) Get(ctx context.Context, id string) (event.Event, error) {
	row := s.db.QueryRowContext(ctx, `select `+eventColumns+` from events where id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, event.ErrNotFound
	}
	return e, err
}

func (s *EventStore) ListStream(ctx context.Context, streamType, streamID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+eventColumns+` from events
		where stream_type = $1 and stream_id = $2
		order by stream_version asc
	`, streamType, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *EventStore) ListPending(ctx context.Context, limit int) ([]event.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+eventColumns+` from events
		where processed_at is null
		order by created_at asc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]event.Event, error) {
	var out []event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EventStore) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update events set processed_at = $2, processing_error = null where id = $1
	`, id, at.UTC())
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *EventStore) RecordError(ctx context.Context, id, msg string) error {
	res, err := s.db.ExecContext(ctx, `
		update events
		set processed_at = null, processing_error = $2, retry_count = retry_count + 1
		where id = $1
	`, id, msg)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *EventStore) ClearError(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update events set processing_error = null where id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return event.ErrNotFound
	}
	return nil
}
