package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/crateai/cratedig/store"
)

// UpsertAudioEmbedding inserts or updates an audio embedding.
func (d *DB) UpsertAudioEmbedding(ctx context.Context, embedding *store.AudioEmbedding) (*store.AudioEmbedding, error) {
	now := time.Now().Unix()
	if embedding.CreatedTs == 0 {
		embedding.CreatedTs = now
	}
	embedding.UpdatedTs = now

	stmt := `
		INSERT INTO audio_embedding (audio_id, user_id, model, source, embedding, created_ts, updated_ts)
		VALUES (` + placeholders(7) + `)
		ON CONFLICT (audio_id)
		DO UPDATE SET
			model = EXCLUDED.model,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`
	vector := pgvector.NewVector(embedding.Embedding)
	if err := d.db.QueryRowContext(ctx, stmt,
		embedding.AudioID,
		embedding.UserID,
		embedding.Model,
		embedding.Source,
		vector,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert audio embedding")
	}

	return embedding, nil
}

// ListAudioEmbeddings lists audio embeddings.
func (d *DB) ListAudioEmbeddings(ctx context.Context, find *store.FindAudioEmbedding) ([]*store.AudioEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.AudioID != nil {
		where, args = append(where, "audio_id = "+placeholder(len(args)+1)), append(args, *find.AudioID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	query := `
		SELECT id, audio_id, user_id, model, source, embedding, created_ts, updated_ts
		FROM audio_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audio embeddings")
	}
	defer rows.Close()

	list := []*store.AudioEmbedding{}
	for rows.Next() {
		var embedding store.AudioEmbedding
		var vector pgvector.Vector
		if err := rows.Scan(
			&embedding.ID,
			&embedding.AudioID,
			&embedding.UserID,
			&embedding.Model,
			&embedding.Source,
			&vector,
			&embedding.CreatedTs,
			&embedding.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan audio embedding")
		}

		embedding.Embedding = vector.Slice()
		list = append(list, &embedding)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// DeleteAudioEmbedding deletes an audio embedding.
func (d *DB) DeleteAudioEmbedding(ctx context.Context, audioID int32) error {
	stmt := `DELETE FROM audio_embedding WHERE audio_id = ` + placeholder(1)
	if _, err := d.db.ExecContext(ctx, stmt, audioID); err != nil {
		return errors.Wrap(err, "failed to delete audio embedding")
	}
	return nil
}

// FindAudiosWithoutEmbedding finds audios missing an embedding. An empty
// model matches audios with no embedding at all.
func (d *DB) FindAudiosWithoutEmbedding(ctx context.Context, find *store.FindAudiosWithoutEmbedding) ([]*store.Audio, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	// An empty model means "no embedding at all"; at most one embedding
	// exists per audio regardless of model.
	joinClause := "LEFT JOIN audio_embedding e ON a.id = e.audio_id"
	args := []any{}
	if find.Model != "" {
		args = append(args, find.Model)
		joinClause += " AND e.model = " + placeholder(len(args))
	}
	args = append(args, limit)

	query := `
		SELECT
			a.id, a.user_id, a.filename, a.file_path, a.fingerprint, a.uploaded_ts,
			aa.audio_id, aa.tempo, aa."key", aa.mode, aa.genres, aa.moods
		FROM audio a
		LEFT JOIN audio_analysis aa ON a.id = aa.audio_id
		` + joinClause + `
		WHERE e.id IS NULL
		ORDER BY a.uploaded_ts DESC
		LIMIT ` + placeholder(len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find audios without embedding")
	}
	defer rows.Close()

	list := []*store.Audio{}
	for rows.Next() {
		audio, err := scanAudioRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, audio)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
