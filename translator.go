package batchworker

import "fmt"

// Translator is a pure function turning one extracted row into one output
// line (§4.5). TranslateBatch defaults to per-row application of Translate
// but can be overridden by a registrant for formats that need batch-level
// framing (e.g. a CSV header written once).
type Translator interface {
	Translate(row Row) (string, error)
	TranslateBatch(rows []Row) ([]string, error)
}

// TranslatorFunc adapts a plain row->line function into a Translator with
// the default per-row TranslateBatch.
type TranslatorFunc func(row Row) (string, error)

func (f TranslatorFunc) Translate(row Row) (string, error) {
	return f(row)
}

func (f TranslatorFunc) TranslateBatch(rows []Row) ([]string, error) {
	lines := make([]string, 0, len(rows))
	for i, r := range rows {
		line, err := f(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// TranslatorRegistry maps a translator identifier (as declared on a
// configured output file) to a Translator. Looking up an unregistered
// identifier is a StateInconsistency-class failure (§4.5, §7).
type TranslatorRegistry struct {
	translators map[string]Translator
}

// NewTranslatorRegistry returns an empty registry.
func NewTranslatorRegistry() *TranslatorRegistry {
	return &TranslatorRegistry{translators: make(map[string]Translator)}
}

// Register associates id with t, replacing any prior registration.
func (r *TranslatorRegistry) Register(id string, t Translator) {
	r.translators[id] = t
}

// RegisterFunc is a convenience wrapper registering a plain function.
func (r *TranslatorRegistry) RegisterFunc(id string, f func(Row) (string, error)) {
	r.Register(id, TranslatorFunc(f))
}

// Lookup returns the translator registered under id, or
// ErrTranslatorNotRegistered.
func (r *TranslatorRegistry) Lookup(id string) (Translator, error) {
	t, ok := r.translators[id]
	if !ok {
		return nil, fmt.Errorf("translator %q: %w", id, ErrTranslatorNotRegistered)
	}
	return t, nil
}
