// Package upstream defines the abstract AI capability the engine consumes:
// analyze a batch of content units into structured entities, and translate
// a span of text. Implementations map their transport failures onto the
// package's error taxonomy so the retry/fallback layer can classify them.
package upstream

import "context"

// WorkMeta identifies the serialized work a call operates on.
type WorkMeta struct {
	WorkID   string
	Title    string
	Author   string
	Language string
}

// UnitText is the content of one unit as sent upstream.
type UnitText struct {
	UnitID string
	SeqNum int
	Title  string
	Body   string
}

// RangeHint tells the model which span of the work a batch covers, so
// incremental extractions stay anchored to the overall sequence.
type RangeHint struct {
	FirstSeq int
	LastSeq  int
}

// TranslateContext carries surrounding context for a translation call.
type TranslateContext struct {
	Meta WorkMeta
	// Glossary maps original-language terms to their established
	// translations so chunks stay consistent with earlier output.
	Glossary map[string]string
	// Preceding is the tail of the previously translated text.
	Preceding string
}

// ExtractedCharacter is one character found in a batch.
type ExtractedCharacter struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
	Role        string   `json:"role,omitempty"`
}

// ExtractedTerm is one glossary term found in a batch.
type ExtractedTerm struct {
	Original    string   `json:"original"`
	Translation string   `json:"translation,omitempty"`
	Category    string   `json:"category,omitempty"`
	Variants    []string `json:"variants,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// ExtractedEvent is one timeline event found in a batch.
type ExtractedEvent struct {
	Title      string   `json:"title"`
	StartSeq   int      `json:"start_seq"`
	Summary    string   `json:"summary,omitempty"`
	Characters []string `json:"characters,omitempty"`
}

// ExtractionResult is the structured output of one analyze call.
type ExtractionResult struct {
	Characters []ExtractedCharacter `json:"characters"`
	Terms      []ExtractedTerm      `json:"terms"`
	Events     []ExtractedEvent     `json:"events"`
	Notes      string               `json:"notes,omitempty"`
}

// Empty reports whether the result carries no entities at all.
func (r *ExtractionResult) Empty() bool {
	return r == nil || (len(r.Characters) == 0 && len(r.Terms) == 0 && len(r.Events) == 0)
}

// Client is one upstream target (a provider+model pairing). A ranked list
// of Clients forms the fallback chain.
type Client interface {
	// Name identifies the target for logging and breaker bookkeeping.
	Name() string

	// Analyze extracts characters, terms, and events from a batch of units.
	Analyze(ctx context.Context, meta WorkMeta, units []UnitText, hint RangeHint) (*ExtractionResult, error)

	// Translate renders text into the configured target language.
	Translate(ctx context.Context, text string, tc TranslateContext) (string, error)
}
