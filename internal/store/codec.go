package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// encodeList marshals a string slice for a JSON column, normalizing nil
// to an empty array so reads never see SQL NULL.
func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal list")
	}
	return string(data), nil
}

// decodeList unmarshals a JSON column into a string slice. Empty input
// yields an empty slice.
func decodeList(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal list")
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// encodeJSON marshals an arbitrary value for a JSON column.
func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal json column")
	}
	return string(data), nil
}

// encodeOptJSON marshals v for a nullable JSON column. A nil pointer
// maps to SQL NULL.
func encodeOptJSON[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal optional json column")
	}
	s := string(data)
	return &s, nil
}

// decodeOptJSON unmarshals a nullable JSON column. NULL or empty input
// yields a nil pointer.
func decodeOptJSON[T any](data *string) (*T, error) {
	if data == nil || *data == "" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(*data), &v); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal optional json column")
	}
	return &v, nil
}
