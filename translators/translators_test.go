package translators

import (
	"encoding/json"
	"testing"

	"github.com/sharedcode/batchworker"
)

func TestCSV_RendersColumnsInOrder(t *testing.T) {
	tr := CSV([]string{"loan_id", "borrower_name", "amount"})
	row := batchworker.Row{"amount": 1500, "loan_id": "L1", "borrower_name": "Alice"}

	line, err := tr.Translate(row)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if line != "L1,Alice,1500" {
		t.Fatalf("got %q", line)
	}
}

func TestCSV_QuotesValuesContainingCommas(t *testing.T) {
	tr := CSV([]string{"name"})
	row := batchworker.Row{"name": "Doe, Jane"}

	line, err := tr.Translate(row)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if line != `"Doe, Jane"` {
		t.Fatalf("got %q", line)
	}
}

func TestCSV_TranslateBatchMatchesPerRowTranslate(t *testing.T) {
	tr := CSV([]string{"id"})
	rows := []batchworker.Row{{"id": "1"}, {"id": "2"}}

	batch, err := tr.TranslateBatch(rows)
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if len(batch) != 2 || batch[0] != "1" || batch[1] != "2" {
		t.Fatalf("got %v", batch)
	}
}

func TestJSON_RendersRowAsObject(t *testing.T) {
	tr := JSON()
	row := batchworker.Row{"loan_id": "L1", "amount": 1500}

	line, err := tr.Translate(row)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", line, err)
	}
	if decoded["loan_id"] != "L1" {
		t.Fatalf("expected loan_id L1, got %v", decoded["loan_id"])
	}
}

func TestJSON_TranslateBatchProducesOneLinePerRow(t *testing.T) {
	tr := JSON()
	rows := []batchworker.Row{{"a": 1}, {"a": 2}}

	lines, err := tr.TranslateBatch(rows)
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}
