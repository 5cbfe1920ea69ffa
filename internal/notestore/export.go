package notestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Export schema version for forward-compatible readers.
const exportSchemaVersion = 1

type exportEnvelope struct {
	V          int          `json:"v"`
	ExportedAt time.Time    `json:"exported_at"`
	Notes      []exportNote `json:"notes"`
}

type exportNote struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Transcript string    `json:"transcript,omitempty"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// ExportJSON writes every note as a single indented JSON document and
// returns the note count.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) (int, error) {
	notes, err := s.List(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}

	env := exportEnvelope{
		V:          exportSchemaVersion,
		ExportedAt: time.Now(),
		Notes:      make([]exportNote, 0, len(notes)),
	}
	for _, n := range notes {
		env.Notes = append(env.Notes, exportNote{
			ID:         n.ID,
			Title:      n.Title,
			Body:       n.Body,
			Transcript: n.Transcript,
			Created:    n.Created,
			Updated:    n.Updated,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return 0, fmt.Errorf("export encode: %w", err)
	}
	return len(env.Notes), nil
}
