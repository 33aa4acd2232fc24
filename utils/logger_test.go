package utils

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/config"
)

func TestRollingFileLoggerFiltersByLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "access.log")
	l, err := NewRollingFileLogger(path, "warn", Rotation{MaxSizeMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("dropped")
	l.Warn("kept", zap.String("account_id", "acc-1"))
	_ = l.Sync()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("line is not json: %q", sc.Text())
		}
		lines = append(lines, entry)
	}
	if len(lines) != 1 || lines[0]["msg"] != "kept" || lines[0]["account_id"] != "acc-1" {
		t.Fatalf("unexpected log lines %v", lines)
	}
	if _, ok := lines[0]["ts"]; !ok {
		t.Fatal("missing ts field")
	}
}

func TestInitLoggerInstallsGlobal(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	if err := InitLogger(config.AppConfig{LogLevel: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
	path := filepath.Join(t.TempDir(), "app.log")
	if err := InitLogger(config.AppConfig{LogLevel: "info", LogPath: path, LogMaxSizeMB: 1}); err != nil {
		t.Fatal(err)
	}
	if L() == prev {
		t.Fatal("global logger was not replaced")
	}
	L().Info("started")
	_ = L().Sync()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("log file is empty")
	}
}
