package translators

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/sharedcode/batchworker"
)

// CSV returns a batchworker.Translator that renders each row as one
// comma-separated line over the given columns, in that order. This is a
// pure, narrow formatting concern with no ecosystem value-add beyond
// encoding/csv's quoting rules, so it stays on the standard library rather
// than pulling in a third-party CSV module.
func CSV(columns []string) batchworker.Translator {
	return csvTranslator{columns: columns}
}

type csvTranslator struct {
	columns []string
}

func (c csvTranslator) Translate(row batchworker.Row) (string, error) {
	lines, err := c.TranslateBatch([]batchworker.Row{row})
	if err != nil {
		return "", err
	}
	return lines[0], nil
}

// TranslateBatch renders each row through its own csv.Writer over the
// configured columns and strips the record terminator, so each row yields
// one entry with encoding/csv's quoting and no trailing line break.
func (c csvTranslator) TranslateBatch(rows []batchworker.Row) ([]string, error) {
	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		values := make([]string, len(c.columns))
		for j, col := range c.columns {
			v, ok := row[col]
			if !ok {
				continue
			}
			values[j] = fmt.Sprint(v)
		}

		var sb strings.Builder
		w := csv.NewWriter(&sb)
		if err := w.Write(values); err != nil {
			return nil, fmt.Errorf("translators: csv row %d: %w", i, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("translators: csv row %d: %w", i, err)
		}
		lines = append(lines, strings.TrimRight(sb.String(), "\r\n"))
	}
	return lines, nil
}
