package device

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/resilience"
)

type mockRunner struct {
	calls [][]string
	out   [][]byte
	errs  []error
}

func (m *mockRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	i := len(m.calls) - 1
	var out []byte
	var err error
	if i < len(m.out) {
		out = m.out[i]
	}
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return out, err
}

func noRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, IsRetryable: func(error) bool { return false }}
}

func TestADBCommands(t *testing.T) {
	tests := []struct {
		name string
		do   func(a *ADB) error
		want []string
	}{
		{"click", func(a *ADB) error { return a.Click(context.Background(), 50, 60) },
			[]string{"adb", "-s", "emu", "shell", "input", "tap", "50", "60"}},
		{"back", func(a *ADB) error { return a.PressBack(context.Background()) },
			[]string{"adb", "-s", "emu", "shell", "input", "keyevent", "4"}},
		{"swipe", func(a *ADB) error { return a.Swipe(context.Background(), 1, 2, 3, 4, 300*time.Millisecond) },
			[]string{"adb", "-s", "emu", "shell", "input", "swipe", "1", "2", "3", "4", "300"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockRunner{}
			a := NewADB("", "emu", WithRunner(m.run))
			if err := tt.do(a); err != nil {
				t.Fatal(err)
			}
			if len(m.calls) != 1 || !reflect.DeepEqual(m.calls[0], tt.want) {
				t.Errorf("calls = %v, want %v", m.calls, tt.want)
			}
		})
	}
}

func TestADBScreenshot(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G'}, []byte("rest")...)
	m := &mockRunner{out: [][]byte{png}}
	a := NewADB("/opt/adb", "", WithRunner(m.run))

	got, err := a.Screenshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(png) {
		t.Errorf("screenshot = %q", got)
	}
	if want := []string{"/opt/adb", "exec-out", "screencap", "-p"}; !reflect.DeepEqual(m.calls[0], want) {
		t.Errorf("call = %v, want %v", m.calls[0], want)
	}
}

func TestADBScreenshotRetriesTransientFailures(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	m := &mockRunner{
		out:  [][]byte{nil, []byte("garbage"), png},
		errs: []error{errors.New("device offline"), nil, nil},
	}
	cfg := resilience.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	a := NewADB("adb", "emu", WithRunner(m.run), WithRetry(cfg))

	if _, err := a.Screenshot(context.Background()); err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if len(m.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(m.calls))
	}
}

func TestADBErrorsCarryCodes(t *testing.T) {
	m := &mockRunner{errs: []error{errors.New("exit 1"), errors.New("exit 1")}}
	a := NewADB("adb", "emu", WithRunner(m.run), WithRetry(noRetry()))

	_, err := a.Screenshot(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeCaptureFailed) {
		t.Errorf("screenshot err = %v, want CAPTURE_FAILED", err)
	}
	err = a.Click(context.Background(), 1, 1)
	if !apperrors.IsCode(err, apperrors.CodeActionFailed) {
		t.Errorf("click err = %v, want ACTION_FAILED", err)
	}
	if !strings.Contains(err.Error(), "emu") {
		t.Errorf("error %q does not name the serial", err)
	}
}

func TestADBConnect(t *testing.T) {
	m := &mockRunner{}
	if err := NewADB("adb", "emulator-5554", WithRunner(m.run)).Connect(context.Background()); err != nil || len(m.calls) != 0 {
		t.Errorf("local serial: err=%v calls=%v", err, m.calls)
	}

	m = &mockRunner{out: [][]byte{[]byte("connected to 127.0.0.1:5555\n")}}
	if err := NewADB("adb", "127.0.0.1:5555", WithRunner(m.run)).Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := []string{"adb", "connect", "127.0.0.1:5555"}; !reflect.DeepEqual(m.calls[0], want) {
		t.Errorf("call = %v", m.calls[0])
	}

	m = &mockRunner{out: [][]byte{[]byte("failed to connect to 127.0.0.1:5555")}}
	err := NewADB("adb", "127.0.0.1:5555", WithRunner(m.run)).Connect(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Errorf("err = %v, want UNAVAILABLE", err)
	}
}
