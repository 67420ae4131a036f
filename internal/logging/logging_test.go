package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/model"
)

func TestNew_FileReceivesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "terminus.log")

	logger, err := New(model.LogConfig{Level: "error", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("resolving", zap.String("term", "bond"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if entry["msg"] != "resolving" || entry["term"] != "bond" || entry["level"] != "debug" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{level: ""},
		{level: "debug"},
		{level: "WARN"},
		{level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			_, err := New(model.LogConfig{Level: tt.level})
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}
