package commandlog

import (
	"github.com/goccy/go-json"
)

// Stats summarizes the log for diagnostics.
type Stats struct {
	Commands int `json:"commands"`
	Position int `json:"position"`
}

func (l *Log) Stats() Stats {
	return Stats{Commands: len(l.commands), Position: l.position}
}

type export struct {
	Position int       `json:"position"`
	Commands []Command `json:"commands"`
}

// Serialize exports the history as JSON for debugging. The export is not a
// persistence format; a log is never stored, only the content it produced.
func (l *Log) Serialize() ([]byte, error) {
	return json.Marshal(export{Position: l.position, Commands: l.commands})
}
