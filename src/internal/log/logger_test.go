package log

import (
	"bytes"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() {
		SetVerbose(false)
	})
	return buf
}

func TestDebugf_OnlyInVerboseMode(t *testing.T) {
	buf := captureOutput(t)

	SetVerbose(false)
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	SetVerbose(true)
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "[DBG]") || !strings.Contains(buf.String(), "shown 2") {
		t.Errorf("expected debug line, got %q", buf.String())
	}
}

func TestLevelPrefixes(t *testing.T) {
	buf := captureOutput(t)

	Infof("info")
	Warnf("warn")
	Errorf("error")

	out := buf.String()
	for _, want := range []string{"[INF]\033[0m info\n", "[WRN]\033[0m warn\n", "[ERR]\033[0m error\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}
