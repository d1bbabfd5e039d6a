package rulefile

import (
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
)

type optionParser func(spec *Spec, value string) error

var optionParsers = map[string]optionParser{
	"mode":       parseMode,
	"region":     parseRegion,
	"confidence": parseConfidence,
	"cooldown":   parseCooldown,
}

func parseMode(spec *Spec, value string) error {
	mode := textmatch.Mode(value)
	if !mode.Known() {
		return apperrors.Newf(apperrors.CodeInvalidRule, "unknown match mode %q", value)
	}
	spec.Mode = mode.Normalize()
	return nil
}

func parseRegion(spec *Spec, value string) error {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return apperrors.Newf(apperrors.CodeInvalidRule, "region needs x1,y1,x2,y2, got %q", value)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return apperrors.Wrapf(err, apperrors.CodeInvalidRule, "region coordinate %q", p)
		}
		n[i] = v
	}
	spec.Region = &textmatch.Region{X1: n[0], Y1: n[1], X2: n[2], Y2: n[3]}
	return nil
}

func parseConfidence(spec *Spec, value string) error {
	c, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeInvalidRule, "confidence %q", value)
	}
	spec.Confidence = &c
	return nil
}

func parseCooldown(spec *Spec, value string) error {
	s, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeInvalidRule, "cooldown %q", value)
	}
	spec.CooldownSeconds = s
	return nil
}

type token struct {
	text   string
	quoted bool
}

// tokenize splits on whitespace. Double quotes group a keyword; inside them
// \" is a literal quote and every other backslash is kept as written.
func tokenize(line string) ([]token, error) {
	var (
		toks    []token
		cur     strings.Builder
		inQuote bool
		quoted  bool
		started bool
	)
	flush := func() {
		if started {
			toks = append(toks, token{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		quoted, started = false, false
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(line) && line[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuote = !inQuote
			quoted, started = true, true
		case !inQuote && (c == ' ' || c == '\t'):
			flush()
		default:
			cur.WriteByte(c)
			started = true
		}
	}
	if inQuote {
		return nil, apperrors.New(apperrors.CodeInvalidRule, "unterminated quote")
	}
	flush()

	if len(toks) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidRule, "empty rule")
	}
	return toks, nil
}
