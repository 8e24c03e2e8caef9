package translators

import (
	"encoding/json"
	"fmt"

	"github.com/sharedcode/batchworker"
)

// JSON returns a batchworker.Translator that renders each row as one JSON
// object per line. Like CSV, this is pure formatting with no ecosystem
// value-add over encoding/json, so it stays on the standard library.
func JSON() batchworker.Translator {
	return jsonTranslator{}
}

type jsonTranslator struct{}

func (jsonTranslator) Translate(row batchworker.Row) (string, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("translators: json marshal: %w", err)
	}
	return string(b), nil
}

func (t jsonTranslator) TranslateBatch(rows []batchworker.Row) ([]string, error) {
	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		line, err := t.Translate(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}
