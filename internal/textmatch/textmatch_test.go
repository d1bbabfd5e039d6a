package textmatch

import (
	"image"
	"testing"

	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
)

func TestCompareModes(t *testing.T) {
	tests := []struct {
		mode    Mode
		text    string
		keyword string
		want    bool
	}{
		{Exact, "Allow", "Allow", true},
		{Exact, "XAllowY", "Allow", false},
		{Contains, "XKY", "K", true},
		{Contains, "XY", "K", false},
		{StartsWith, "Skip 5s", "Skip", true},
		{StartsWith, "5s Skip", "Skip", false},
		{EndsWith, "Tap to Continue", "Continue", true},
		{EndsWith, "Continue now", "Continue", false},
		{Regex, "5s left", `\d+s`, true},
		{Regex, "five left", `\d+s`, false},
		{Regex, "anything", `(`, false},
		{Mode("fuzzy"), "Allow", "Allow", true},
		{Mode("fuzzy"), "Allow all", "Allow", false},
	}

	for _, tt := range tests {
		if got := Compare(tt.text, tt.keyword, tt.mode); got != tt.want {
			t.Errorf("Compare(%q, %q, %s) = %v, want %v", tt.text, tt.keyword, tt.mode, got, tt.want)
		}
	}
}

func TestModeNormalize(t *testing.T) {
	tests := []struct {
		in    Mode
		want  Mode
		known bool
	}{
		{"exact", Exact, true},
		{"CONTAINS", Contains, true},
		{"startsWith", StartsWith, true},
		{"starts_with", StartsWith, true},
		{" endswith ", EndsWith, true},
		{"regex", Regex, true},
		{"glob", Exact, false},
		{"", Exact, false},
	}

	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Mode(%q).Normalize() = %q, want %q", tt.in, got, tt.want)
		}
		if got := tt.in.Known(); got != tt.known {
			t.Errorf("Mode(%q).Known() = %v, want %v", tt.in, got, tt.known)
		}
	}
}

func TestMatcherOrSemantics(t *testing.T) {
	m := NewMatcher(Contains, "Allow", "Agree")

	if !m.Match("I Agree") {
		t.Error("second keyword should match")
	}
	if m.Match("Deny") {
		t.Error("no keyword should match")
	}
	if NewMatcher(Contains).Match("anything") {
		t.Error("empty keyword list must never match")
	}
}

func TestMatcherInvalidRegexNeverMatches(t *testing.T) {
	m := NewMatcher(Regex, `[unclosed`, `^ok$`)

	if m.Match("[unclosed") {
		t.Error("invalid pattern should never match")
	}
	if !m.Match("ok") {
		t.Error("valid pattern after an invalid one should still match")
	}
}

func TestRegionContainsInclusive(t *testing.T) {
	r := Region{X1: 10, Y1: 20, X2: 100, Y2: 200}

	tests := []struct {
		p    recognition.Point
		want bool
	}{
		{recognition.Point{X: 10, Y: 20}, true},
		{recognition.Point{X: 100, Y: 200}, true},
		{recognition.Point{X: 50, Y: 50}, true},
		{recognition.Point{X: 9.5, Y: 50}, false},
		{recognition.Point{X: 50, Y: 200.5}, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestFilterFirst(t *testing.T) {
	results := []recognition.Result{
		{Text: "OK", Box: image.Rect(0, 0, 20, 20), Confidence: 0.95},
		{Text: "OK", Box: image.Rect(200, 200, 220, 220), Confidence: 0.5},
		{Text: "OK", Box: image.Rect(200, 200, 240, 240), Confidence: 0.9},
	}
	f := Filter{
		Matcher:    NewMatcher(Exact, "OK"),
		Region:     &Region{X1: 100, Y1: 100, X2: 300, Y2: 300},
		Confidence: 0.7,
	}

	got, ok := f.First(results)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Box != results[2].Box {
		t.Errorf("matched %v, want the in-region high-confidence result", got.Box)
	}
	if n := len(f.All(results)); n != 1 {
		t.Errorf("All() returned %d results, want 1", n)
	}
}
