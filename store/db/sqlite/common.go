package sqlite

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// placeholder returns a placeholder for SQLite (uses ?).
func placeholder(n int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

// marshalStringList encodes a string slice as a JSON text column.
// Nil encodes as an empty list.
func marshalStringList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	buf, err := json.Marshal(list)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal string list")
	}
	return string(buf), nil
}

// unmarshalStringList decodes a JSON text column into a string slice.
func unmarshalStringList(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal string list")
	}
	return list, nil
}

// marshalVector encodes an embedding as a JSON text column.
func marshalVector(vector []float32) (string, error) {
	buf, err := json.Marshal(vector)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal vector")
	}
	return string(buf), nil
}

// unmarshalVector decodes a JSON text column into an embedding.
func unmarshalVector(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	var vector []float32
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal vector")
	}
	return vector, nil
}
