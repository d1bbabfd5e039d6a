// Package rulefile loads watcher rules from a line-oriented text file.
//
//	# action keyword [keyword...] [mode=...] [region=x1,y1,x2,y2] [confidence=f] [cooldown=seconds]
//	click Allow "Continue install"
//	dismiss "\d+s left" mode=regex
package rulefile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

// Spec is a declarative rule, shared by the file format and the HTTP API.
type Spec struct {
	Action          string            `json:"action"`
	Keywords        []string          `json:"keywords"`
	Mode            textmatch.Mode    `json:"mode,omitempty"`
	Region          *textmatch.Region `json:"region,omitempty"`
	Confidence      *float64          `json:"confidence,omitempty"`
	CooldownSeconds float64           `json:"cooldown_seconds,omitempty"`
}

// Validate checks the spec before it is applied.
func (s Spec) Validate() error {
	switch s.Action {
	case watcher.ActionClick, watcher.ActionDismiss, watcher.ActionLog:
	default:
		return apperrors.Newf(apperrors.CodeInvalidRule, "unknown action %q", s.Action)
	}
	if len(s.Keywords) == 0 {
		return apperrors.New(apperrors.CodeInvalidRule, "at least one keyword is required")
	}
	if s.Mode != "" && !s.Mode.Known() {
		return apperrors.Newf(apperrors.CodeInvalidRule, "unknown match mode %q", s.Mode)
	}
	if r := s.Region; r != nil && (r.X1 > r.X2 || r.Y1 > r.Y2) {
		return apperrors.Newf(apperrors.CodeInvalidRule, "region corners out of order: %d,%d,%d,%d", r.X1, r.Y1, r.X2, r.Y2)
	}
	if c := s.Confidence; c != nil && !recognition.ValidConfidence(*c) {
		return apperrors.Newf(apperrors.CodeInvalidRule, "confidence %v outside [0,1]", *c)
	}
	if _, ok := watcher.Seconds(s.CooldownSeconds); !ok {
		return apperrors.Newf(apperrors.CodeInvalidRule, "cooldown %v seconds out of range", s.CooldownSeconds)
	}
	return nil
}

// Apply registers the spec on w and returns the new rule's ID.
func (s Spec) Apply(w *watcher.Watcher) (uuid.UUID, error) {
	if err := s.Validate(); err != nil {
		return uuid.Nil, err
	}

	b := w.When(s.Keywords[0])
	for _, kw := range s.Keywords[1:] {
		b.When(kw)
	}
	if s.Mode != "" {
		b.MatchMode(s.Mode)
	}
	if r := s.Region; r != nil {
		b.Region(r.X1, r.Y1, r.X2, r.Y2)
	}
	if s.Confidence != nil {
		b.Confidence(*s.Confidence)
	}
	if cooldown, _ := watcher.Seconds(s.CooldownSeconds); cooldown > 0 {
		b.Cooldown(cooldown)
	}

	switch s.Action {
	case watcher.ActionClick:
		b.Click()
	case watcher.ActionDismiss:
		b.Dismiss()
	default:
		b.Log()
	}
	return b.Added()[0], nil
}

// Load reads and parses path. A blank path or a missing file yields no rules.
func Load(path string) ([]Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	specs, err := Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return specs, nil
}

// LoadInto loads path and registers every rule on w.
func LoadInto(w *watcher.Watcher, path string) (int, error) {
	specs, err := Load(path)
	if err != nil {
		return 0, err
	}
	for _, s := range specs {
		if _, err := s.Apply(w); err != nil {
			return 0, err
		}
	}
	return len(specs), nil
}

// Parse parses file contents. Errors name the offending line.
func Parse(contents string) ([]Spec, error) {
	lines := strings.Split(contents, "\n")
	specs := make([]Spec, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		spec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseLine(line string) (Spec, error) {
	toks, err := tokenize(line)
	if err != nil {
		return Spec{}, err
	}

	spec := Spec{Action: strings.ToLower(toks[0].text)}
	for _, tok := range toks[1:] {
		if key, val, ok := strings.Cut(tok.text, "="); ok && !tok.quoted {
			parse, known := optionParsers[key]
			if !known {
				return Spec{}, apperrors.Newf(apperrors.CodeInvalidRule, "unknown option %q", key)
			}
			if err := parse(&spec, val); err != nil {
				return Spec{}, err
			}
			continue
		}
		spec.Keywords = append(spec.Keywords, tok.text)
	}

	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}
