package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogger_BasicLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "text", Output: &buf})

	log.Debug("dbg", String("k", "v"))
	log.Info("info", Int("n", 42))
	log.Warn("warn", Bool("ok", true))
	log.Error("err", Error(nil))

	out := buf.String()
	for _, s := range []string{"[DEBUG] dbg k=v", "[INFO] info n=42", "[WARN] warn ok=true", "[ERROR] err error=nil"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected output to contain %q, got: %s", s, out)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn message missing: %s", out)
	}
	if log.Enabled(DebugLevel) {
		t.Fatal("debug should not be enabled at warn level")
	}
}

func TestLogger_NestedComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "info", Output: &buf})
	comp := base.WithComponent("gateway").WithComponent("dmr")

	comp.Info("started", Duration("after", 1500*time.Millisecond))

	out := buf.String()
	if !strings.Contains(out, "[gateway.dmr]") {
		t.Fatalf("expected nested component prefix in output, got: %s", out)
	}
	if !strings.Contains(out, "[INFO] started after=1.5s") {
		t.Fatalf("expected info message in output, got: %s", out)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf}).WithComponent("wiresx")

	log.Info("command", String("opcode", "DX"), Hex("tag", []byte{0x5D, 0x71}))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "wiresx" || entry["msg"] != "command" || entry["level"] != "info" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["tag"] != "5d71" {
		t.Errorf("tag = %v, want 5d71", entry["tag"])
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gw.log")
	w, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	log := New(Config{Output: w})
	log.Info("to file")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
