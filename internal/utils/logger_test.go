// internal/utils/logger_test.go
package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Info("lot analysé", map[string]interface{}{"batch": 2, "images": "10"})

	out := buf.String()
	for _, want := range []string{"lot analysé", "batch=2", "images=10", "INF"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug line written at INFO level: %q", buf.String())
	}

	l.SetLogLevel(DEBUG)
	l.Debugf("visible %d", 1)
	if !strings.Contains(buf.String(), "visible 1") {
		t.Fatalf("debug line missing after SetLogLevel(DEBUG): %q", buf.String())
	}

	buf.Reset()
	l.Enable(false)
	l.Error("muted", nil)
	if buf.Len() != 0 {
		t.Fatalf("disabled logger wrote %q", buf.String())
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	if err := InitLogger(path); err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	t.Cleanup(func() { GetLogger().Close() })

	GetLogger().Warn("fichier", map[string]interface{}{"k": "v"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"fichier"`) {
		t.Fatalf("log file content %q", data)
	}
}
