package upstream

import (
	"errors"
	"strings"
	"testing"
)

var errTest = errors.New("boom")

func TestParseExtraction_Valid(t *testing.T) {
	content := `{
		"characters": [{"name": "Wei Lan", "aliases": ["Sister Wei"], "role": "protagonist"}],
		"terms": [{"original": "灵气", "translation": "spirit energy", "category": "cultivation"}],
		"events": [{"title": "The sect trial", "start_seq": 3, "summary": "Wei Lan enters the trial."}],
		"notes": "first arc"
	}`

	result, err := ParseExtraction(content)
	if err != nil {
		t.Fatalf("ParseExtraction error = %v", err)
	}
	if len(result.Characters) != 1 || result.Characters[0].Name != "Wei Lan" {
		t.Errorf("characters = %+v", result.Characters)
	}
	if len(result.Terms) != 1 || result.Terms[0].Original != "灵气" {
		t.Errorf("terms = %+v", result.Terms)
	}
	if len(result.Events) != 1 || result.Events[0].StartSeq != 3 {
		t.Errorf("events = %+v", result.Events)
	}
}

func TestParseExtraction_CodeFenced(t *testing.T) {
	content := "```json\n{\"characters\": [], \"terms\": [], \"events\": []}\n```"
	result, err := ParseExtraction(content)
	if err != nil {
		t.Fatalf("ParseExtraction error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestParseExtraction_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"not json":        "the model rambled instead",
		"missing keys":    `{"characters": []}`,
		"nameless char":   `{"characters": [{"aliases": ["x"]}], "terms": [], "events": []}`,
		"event no start":  `{"characters": [], "terms": [], "events": [{"title": "t"}]}`,
		"empty term name": `{"characters": [], "terms": [{"original": ""}], "events": []}`,
	}
	for name, content := range cases {
		if _, err := ParseExtraction(content); err == nil {
			t.Errorf("%s: ParseExtraction succeeded, want error", name)
		}
	}
}

func TestStripCodeFences(t *testing.T) {
	plain := `{"a": 1}`
	if got := stripCodeFences(plain); got != plain {
		t.Errorf("stripCodeFences(plain) = %q", got)
	}
	fenced := "```\n{\"a\": 1}\n```"
	if got := stripCodeFences(fenced); got != plain {
		t.Errorf("stripCodeFences(fenced) = %q", got)
	}
	if got := stripCodeFences("```json\n{\"a\": 1}"); !strings.Contains(got, `"a"`) {
		t.Errorf("unterminated fence mangled: %q", got)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(Fatal("m", errTest)) != KindFatal {
		t.Error("Fatal not classified as fatal")
	}
	if KindOf(RateLimited("m", errTest)) != KindRateLimited {
		t.Error("RateLimited not classified")
	}
	if KindOf(errTest) != KindTransient {
		t.Error("unclassified error should default to transient")
	}
	if !IsSevere(TargetUnavailable("m", true, errTest)) {
		t.Error("severe flag lost")
	}
	if Retryable(Fatal("m", errTest)) {
		t.Error("fatal must not be retryable")
	}
}
