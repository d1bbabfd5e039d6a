// Package textmatch implements keyword comparison and screen-region filters
// shared by the watcher and the one-shot helpers.
package textmatch

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
)

// Mode selects how a keyword is compared with recognized text.
type Mode string

const (
	Exact      Mode = "exact"
	Contains   Mode = "contains"
	StartsWith Mode = "startswith"
	EndsWith   Mode = "endswith"
	Regex      Mode = "regex"
)

// Normalize maps spelling variants ("startsWith", "starts_with") onto the
// canonical modes. Anything unrecognized becomes Exact.
func (m Mode) Normalize() Mode {
	canon, _ := m.canonical()
	return canon
}

// Known reports whether m names a mode without falling back.
func (m Mode) Known() bool {
	_, ok := m.canonical()
	return ok
}

func (m Mode) canonical() (Mode, bool) {
	key := Mode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(string(m))), "_", ""))
	switch key {
	case Exact, Contains, StartsWith, EndsWith, Regex:
		return key, true
	default:
		return Exact, false
	}
}

// Matcher tests recognized text against an ordered keyword list (OR semantics).
type Matcher struct {
	mode     Mode
	keywords []string
	patterns []*regexp.Regexp // parallel to keywords in Regex mode; nil entries never match
}

// NewMatcher compiles keywords for mode. Invalid regex keywords are logged and never match.
func NewMatcher(mode Mode, keywords ...string) *Matcher {
	m := &Matcher{mode: mode.Normalize(), keywords: append([]string(nil), keywords...)}
	if m.mode == Regex {
		m.patterns = make([]*regexp.Regexp, len(keywords))
		for i, kw := range keywords {
			re, err := regexp.Compile(kw)
			if err != nil {
				slog.Warn("invalid regex keyword, it will never match", "keyword", kw, "error", err)
				continue
			}
			m.patterns[i] = re
		}
	}
	return m
}

// Mode returns the normalized mode.
func (m *Matcher) Mode() Mode { return m.mode }

// Keywords returns a copy of the keyword list.
func (m *Matcher) Keywords() []string { return append([]string(nil), m.keywords...) }

// Match reports whether text matches any keyword. An empty keyword list never matches.
func (m *Matcher) Match(text string) bool {
	for i, kw := range m.keywords {
		if m.mode == Regex {
			if re := m.patterns[i]; re != nil && re.MatchString(text) {
				return true
			}
			continue
		}
		if Compare(text, kw, m.mode) {
			return true
		}
	}
	return false
}

// Compare tests a single keyword against text. Regex keywords are compiled on
// every call here; use a Matcher for repeated evaluation.
func Compare(text, keyword string, mode Mode) bool {
	switch mode.Normalize() {
	case Contains:
		return strings.Contains(text, keyword)
	case StartsWith:
		return strings.HasPrefix(text, keyword)
	case EndsWith:
		return strings.HasSuffix(text, keyword)
	case Regex:
		re, err := regexp.Compile(keyword)
		return err == nil && re.MatchString(text)
	default:
		return text == keyword
	}
}

// Region is an inclusive screen rectangle.
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Contains reports whether p lies within the rectangle, bounds included.
func (r Region) Contains(p recognition.Point) bool {
	return float64(r.X1) <= p.X && p.X <= float64(r.X2) &&
		float64(r.Y1) <= p.Y && p.Y <= float64(r.Y2)
}

// Filter is the full per-result predicate: region, confidence floor and keywords.
type Filter struct {
	Matcher    *Matcher
	Region     *Region // nil means whole screen
	Confidence float64
}

// Accept reports whether res passes every part of the filter.
func (f Filter) Accept(res recognition.Result) bool {
	if f.Region != nil && !f.Region.Contains(res.Center()) {
		return false
	}
	if res.Confidence < f.Confidence {
		return false
	}
	return f.Matcher.Match(res.Text)
}

// First returns the first result, in engine order, accepted by f.
func (f Filter) First(results []recognition.Result) (recognition.Result, bool) {
	for _, res := range results {
		if f.Accept(res) {
			return res, true
		}
	}
	return recognition.Result{}, false
}

// All returns every accepted result, in engine order.
func (f Filter) All(results []recognition.Result) []recognition.Result {
	var out []recognition.Result
	for _, res := range results {
		if f.Accept(res) {
			out = append(out, res)
		}
	}
	return out
}
