package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConsoleLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Prefix: "migrate", Output: &buf})

	l.Debug("hidden")
	l.Info("[Migration][Run] Starting migration run", "units", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %q", out)
	}
	for _, want := range []string{"migrate", "[Migration][Run] Starting migration run", "units=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q does not contain %q", out, want)
		}
	}
}

func TestConsoleLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Debug: true, JSON: true, Output: &buf})

	l.Debug("[EdgeRules][Load] Loaded edge rules", "rules", 12)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("not a JSON line: %q: %v", buf.String(), err)
	}
	if line["msg"] != "[EdgeRules][Load] Loaded edge rules" || line["rules"] != float64(12) || line["level"] != "debug" {
		t.Fatalf("line = %v", line)
	}
}
