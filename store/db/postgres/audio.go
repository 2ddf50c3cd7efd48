package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/crateai/cratedig/store"
)

// CreateAudio creates an audio record.
func (d *DB) CreateAudio(ctx context.Context, create *store.Audio) (*store.Audio, error) {
	stmt := `
		INSERT INTO audio (user_id, filename, file_path, fingerprint, uploaded_ts)
		VALUES (` + placeholders(5) + `)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UserID,
		create.Filename,
		create.FilePath,
		create.Fingerprint,
		create.UploadedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create audio")
	}

	return create, nil
}

// ListAudios lists audio records left-joined with their analysis.
func (d *DB) ListAudios(ctx context.Context, find *store.FindAudio) ([]*store.Audio, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "a.id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "a.user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	orderBy := "a.id ASC"
	if find.OrderByUploadedDesc {
		orderBy = "a.uploaded_ts DESC, a.id DESC"
	}

	query := `
		SELECT
			a.id, a.user_id, a.filename, a.file_path, a.fingerprint, a.uploaded_ts,
			aa.audio_id, aa.tempo, aa."key", aa.mode, aa.genres, aa.moods
		FROM audio a
		LEFT JOIN audio_analysis aa ON a.id = aa.audio_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + orderBy

	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audios")
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

// UpsertAudioAnalysis inserts or updates the analysis of an audio record.
func (d *DB) UpsertAudioAnalysis(ctx context.Context, upsert *store.UpsertAudioAnalysis) (*store.AudioAnalysis, error) {
	genres, err := marshalStringList(upsert.Genres)
	if err != nil {
		return nil, err
	}
	moods, err := marshalStringList(upsert.Moods)
	if err != nil {
		return nil, err
	}

	stmt := `
		INSERT INTO audio_analysis (audio_id, tempo, "key", mode, genres, moods)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (audio_id)
		DO UPDATE SET
			tempo = EXCLUDED.tempo,
			"key" = EXCLUDED."key",
			mode = EXCLUDED.mode,
			genres = EXCLUDED.genres,
			moods = EXCLUDED.moods
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.AudioID,
		upsert.Tempo,
		upsert.Key,
		upsert.Mode,
		genres,
		moods,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert audio analysis")
	}

	return &store.AudioAnalysis{
		AudioID: upsert.AudioID,
		Tempo:   upsert.Tempo,
		Key:     upsert.Key,
		Mode:    upsert.Mode,
		Genres:  upsert.Genres,
		Moods:   upsert.Moods,
	}, nil
}

// ListAudioVectors performs the full scan of audio records joined with
// analysis and embedding.
func (d *DB) ListAudioVectors(ctx context.Context, find *store.FindAudioVector) ([]*store.AudioVector, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "a.user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	query := `
		SELECT
			a.id, a.user_id, a.filename, a.uploaded_ts,
			aa.tempo, aa."key", aa.genres, aa.moods,
			e.embedding
		FROM audio a
		LEFT JOIN audio_analysis aa ON a.id = aa.audio_id
		LEFT JOIN audio_embedding e ON a.id = e.audio_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY a.id ASC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audio vectors")
	}
	defer rows.Close()

	list := []*store.AudioVector{}
	for rows.Next() {
		var vector store.AudioVector
		var genresRaw, moodsRaw, embeddingRaw []byte
		if err := rows.Scan(
			&vector.AudioID,
			&vector.UserID,
			&vector.Filename,
			&vector.UploadedTs,
			&vector.Tempo,
			&vector.Key,
			&genresRaw,
			&moodsRaw,
			&embeddingRaw,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan audio vector")
		}

		if vector.Genres, err = unmarshalStringList(genresRaw); err != nil {
			return nil, err
		}
		if vector.Moods, err = unmarshalStringList(moodsRaw); err != nil {
			return nil, err
		}
		if len(embeddingRaw) > 0 {
			var embedding pgvector.Vector
			if err := embedding.Scan(embeddingRaw); err != nil {
				return nil, errors.Wrap(err, "failed to scan embedding vector")
			}
			vector.Embedding = embedding.Slice()
		}

		list = append(list, &vector)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func scanAudioRow(rows *sql.Rows) (*store.Audio, error) {
	var audio store.Audio
	var analysisID sql.NullInt32
	var tempo sql.NullFloat64
	var key, mode sql.NullString
	var genresRaw, moodsRaw []byte

	if err := rows.Scan(
		&audio.ID,
		&audio.UserID,
		&audio.Filename,
		&audio.FilePath,
		&audio.Fingerprint,
		&audio.UploadedTs,
		&analysisID,
		&tempo,
		&key,
		&mode,
		&genresRaw,
		&moodsRaw,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan audio")
	}

	if analysisID.Valid {
		analysis := &store.AudioAnalysis{AudioID: analysisID.Int32}
		if tempo.Valid {
			analysis.Tempo = &tempo.Float64
		}
		if key.Valid {
			analysis.Key = &key.String
		}
		if mode.Valid {
			analysis.Mode = &mode.String
		}

		var err error
		if analysis.Genres, err = unmarshalStringList(genresRaw); err != nil {
			return nil, err
		}
		if analysis.Moods, err = unmarshalStringList(moodsRaw); err != nil {
			return nil, err
		}
		audio.Analysis = analysis
	}

	return &audio, nil
}
