package rulefile

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

func TestParse(t *testing.T) {
	t.Parallel()

	contents := `
# popups
click Allow "Continue install"
dismiss "\d+s left" mode=regex
click Update region=100,100,800,600 confidence=0.8 cooldown=30
log "say \"hi\"" mode=startsWith
`
	specs, err := Parse(contents)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(specs) != 4 {
		t.Fatalf("specs = %d, want 4", len(specs))
	}

	if got := specs[0].Keywords; len(got) != 2 || got[1] != "Continue install" {
		t.Errorf("keywords = %q", got)
	}
	if specs[1].Keywords[0] != `\d+s left` || specs[1].Mode != textmatch.Regex {
		t.Errorf("regex spec = %+v", specs[1])
	}

	s := specs[2]
	if s.Region == nil || *s.Region != (textmatch.Region{X1: 100, Y1: 100, X2: 800, Y2: 600}) {
		t.Errorf("region = %+v", s.Region)
	}
	if s.Confidence == nil || *s.Confidence != 0.8 || s.CooldownSeconds != 30 {
		t.Errorf("confidence/cooldown = %v/%v", s.Confidence, s.CooldownSeconds)
	}

	if specs[3].Action != watcher.ActionLog || specs[3].Keywords[0] != `say "hi"` || specs[3].Mode != textmatch.StartsWith {
		t.Errorf("log spec = %+v", specs[3])
	}
}

func TestParseQuotedOptionIsKeyword(t *testing.T) {
	t.Parallel()

	specs, err := Parse(`click "mode=regex"`)
	if err != nil {
		t.Fatal(err)
	}
	if specs[0].Keywords[0] != "mode=regex" || specs[0].Mode != "" {
		t.Errorf("spec = %+v", specs[0])
	}
}

func TestParseErrorsNameLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		contents string
		line     string
	}{
		{"unknown action", "click OK\nexplode OK", "line 2"},
		{"no keywords", "\n\nclick mode=exact", "line 3"},
		{"bad region", "click OK region=1,2,3", "line 1"},
		{"inverted region", "click OK region=10,10,5,5", "line 1"},
		{"bad confidence", "click OK confidence=high", "line 1"},
		{"confidence range", "click OK confidence=1.5", "line 1"},
		{"unknown mode", "click OK mode=fuzzy", "line 1"},
		{"unknown option", "click OK colour=red", "line 1"},
		{"unterminated quote", `click "OK`, "line 1"},
		{"negative cooldown", "click OK cooldown=-1", "line 1"},
		{"NaN confidence", "click OK confidence=NaN", "line 1"},
		{"infinite confidence", "click OK confidence=+Inf", "line 1"},
		{"NaN cooldown", "\nclick OK cooldown=NaN", "line 2"},
		{"overflowing cooldown", "click OK cooldown=1e300", "line 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.contents)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.line) {
				t.Errorf("error %q does not mention %q", err, tt.line)
			}
			if !apperrors.IsCode(err, apperrors.CodeInvalidRule) {
				t.Errorf("error %v is not INVALID_RULE", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	specs, err := Load(filepath.Join(t.TempDir(), "absent.rules"))
	if err != nil || specs != nil {
		t.Errorf("Load = %v, %v; want nil, nil", specs, err)
	}
	if specs, err := Load(""); err != nil || specs != nil {
		t.Errorf("Load(\"\") = %v, %v", specs, err)
	}
}

type recordingDevice struct {
	clicks int
	backs  int
}

func (d *recordingDevice) Screenshot(context.Context) ([]byte, error) { return []byte("x"), nil }

func (d *recordingDevice) Click(context.Context, int, int) error {
	d.clicks++
	return nil
}

func (d *recordingDevice) PressBack(context.Context) error {
	d.backs++
	return nil
}

type staticEngine []recognition.Result

func (e staticEngine) Recognize(context.Context, []byte) ([]recognition.Result, error) {
	return e, nil
}

func TestLoadIntoWatcher(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "watch.rules")
	contents := "click Allow\ndismiss \"\\d+s left\" mode=regex cooldown=2.5\nlog Nothing mode=exact\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}

	dev := &recordingDevice{}
	eng := staticEngine{
		{Text: "Allow all", Box: image.Rect(0, 0, 10, 10), Confidence: 0.9},
		{Text: "5s left", Box: image.Rect(0, 0, 10, 10), Confidence: 0.9},
	}
	w := watcher.New(dev, eng)

	n, err := LoadInto(w, path)
	if err != nil || n != 3 {
		t.Fatalf("LoadInto = %d, %v", n, err)
	}

	rules := w.Rules()
	if rules[1].CooldownSeconds != 2.5 || rules[1].Mode != textmatch.Regex {
		t.Errorf("rule 2 = %+v", rules[1])
	}
	if rules[0].Mode != textmatch.Contains {
		t.Errorf("file rules should keep the builder default mode, got %s", rules[0].Mode)
	}

	if _, err := w.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dev.clicks != 1 || dev.backs != 1 {
		t.Errorf("clicks=%d backs=%d, want 1, 1", dev.clicks, dev.backs)
	}
}

func TestSpecApplyRejectsInvalid(t *testing.T) {
	t.Parallel()

	w := watcher.New(&recordingDevice{}, staticEngine{})
	_, err := Spec{Action: "click"}.Apply(w)
	if !apperrors.IsCode(err, apperrors.CodeInvalidRule) {
		t.Errorf("err = %v, want INVALID_RULE", err)
	}
	if len(w.Rules()) != 0 {
		t.Error("invalid spec registered a rule")
	}

	id, err := Spec{Action: "dismiss", Keywords: []string{"Ad"}, CooldownSeconds: 1}.Apply(w)
	if err != nil {
		t.Fatal(err)
	}
	if rules := w.Rules(); len(rules) != 1 || rules[0].ID != id.String() || rules[0].CooldownSeconds != time.Second.Seconds() {
		t.Errorf("rules = %+v", rules)
	}
}
