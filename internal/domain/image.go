package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// HistoryEntry represents a previously generated image stored by the backend
type HistoryEntry struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	Prompt      string    `json:"prompt"`
	ImageURL    string    `json:"image_url"`
	IsVariation bool      `json:"is_variation"`
	CreatedAt   Timestamp `json:"created_at"`
}

// Timestamp accepts RFC 3339 times as well as the zone-less ISO form the backend emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
