package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/crateai/cratedig/store"
)

// CreateTelemetryEvents persists a batch of telemetry events in one transaction.
func (d *DB) CreateTelemetryEvents(ctx context.Context, creates []*store.TelemetryEvent) ([]*store.TelemetryEvent, error) {
	if len(creates) == 0 {
		return creates, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := `
		INSERT INTO telemetry_event (session_id, event, audio_id, score, item_rank, source, metadata, created_ts)
		VALUES (` + placeholders(8) + `)
		RETURNING id
	`
	now := time.Now().Unix()
	for _, create := range creates {
		metadata, err := marshalMetadata(create.Metadata)
		if err != nil {
			return nil, err
		}
		if create.CreatedTs == 0 {
			create.CreatedTs = now
		}

		if err := tx.QueryRowContext(ctx, stmt,
			create.SessionID,
			create.Event,
			create.AudioID,
			create.Score,
			create.Rank,
			create.Source,
			metadata,
			create.CreatedTs,
		).Scan(&create.ID); err != nil {
			return nil, errors.Wrap(err, "failed to create telemetry event")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}

	return creates, nil
}

// ListTelemetryEvents lists telemetry events.
func (d *DB) ListTelemetryEvents(ctx context.Context, find *store.FindTelemetryEvent) ([]*store.TelemetryEvent, error) {
	where, args := buildTelemetryWhere(find)

	query := `
		SELECT id, session_id, event, audio_id, score, item_rank, source, metadata, created_ts
		FROM telemetry_event
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC
	`
	if find.Limit != nil {
		args = append(args, *find.Limit)
		query += " LIMIT ?"
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list telemetry events")
	}
	defer rows.Close()

	list := []*store.TelemetryEvent{}
	for rows.Next() {
		var event store.TelemetryEvent
		var audioID sql.NullInt32
		var score sql.NullFloat64
		var rank sql.NullInt32
		var source sql.NullString
		var metadataRaw string

		if err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.Event,
			&audioID,
			&score,
			&rank,
			&source,
			&metadataRaw,
			&event.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan telemetry event")
		}

		if audioID.Valid {
			event.AudioID = &audioID.Int32
		}
		if score.Valid {
			event.Score = &score.Float64
		}
		if rank.Valid {
			event.Rank = &rank.Int32
		}
		if source.Valid {
			event.Source = &source.String
		}
		if event.Metadata, err = unmarshalMetadata(metadataRaw); err != nil {
			return nil, err
		}

		list = append(list, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// CountTelemetryEvents counts telemetry events matching the condition.
func (d *DB) CountTelemetryEvents(ctx context.Context, find *store.FindTelemetryEvent) (int64, error) {
	where, args := buildTelemetryWhere(find)

	query := `SELECT COUNT(*) FROM telemetry_event WHERE ` + strings.Join(where, " AND ")

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count telemetry events")
	}
	return count, nil
}

func buildTelemetryWhere(find *store.FindTelemetryEvent) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}

	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.Event != nil {
		where, args = append(where, "event = ?"), append(args, *find.Event)
	}
	if find.AudioID != nil {
		where, args = append(where, "audio_id = ?"), append(args, *find.AudioID)
	}

	return where, args
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(metadata)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal metadata")
	}
	return string(buf), nil
}

func unmarshalMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal metadata")
	}
	return metadata, nil
}
