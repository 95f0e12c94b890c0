package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// persistVersion tags the stored envelope. Version 0 is the bare JSON array
// written by older clients.
const persistVersion = 1

type envelope struct {
	Version int               `json:"version"`
	Items   []json.RawMessage `json:"items"`
}

func encodeEnvelope(items any) ([]byte, error) {
	data, err := json.Marshal(struct {
		Version int `json:"version"`
		Items   any `json:"items"`
	}{persistVersion, items})
	if err != nil {
		return nil, fmt.Errorf("error encoding collection: %w", err)
	}
	return data, nil
}

// decodeEnvelope splits a persisted collection into its raw entries so each
// can be validated on its own.
func decodeEnvelope(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("error decoding legacy array: %w", err)
		}
		return items, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("error decoding envelope: %w", err)
	}
	if env.Version > persistVersion {
		slog.Warn("persisted collection has a newer version", "version", env.Version, "supported", persistVersion)
	}
	return env.Items, nil
}

// flexTime accepts RFC3339 strings and the epoch-millisecond numbers older
// clients stored.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" || s == "" {
		return nil
	}
	if s[0] == '"' {
		t, err := time.Parse(time.RFC3339Nano, s[1:len(s)-1])
		if err != nil {
			return err
		}
		f.Time = t
		return nil
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.Time = time.UnixMilli(int64(ms))
	return nil
}
