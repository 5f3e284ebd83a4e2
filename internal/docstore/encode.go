package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored times order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// encodeValue converts a Go value to its stored JSON form.
func (s *Store) encodeValue(v any) any {
	switch t := v.(type) {
	case serverTimestamp:
		return formatTime(s.now())
	case time.Time:
		return formatTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return formatTime(*t)
	}
	return v
}

func (s *Store) encodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = s.encodeValue(v)
	}
	return out
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("docstore: encode fields: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(data string) (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("docstore: decode fields: %w", err)
	}
	return out, nil
}
