package utils

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

const (
	StatusStarted   = "STARTED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// NewLogger logs text to stderr and, when logPath is set, JSON lines to
// logPath. The returned closer releases the log file.
func NewLogger(logPath string) (*slog.Logger, io.Closer, error) {
	console := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	if logPath == "" {
		return slog.New(console), io.NopCloser(nil), nil
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, err
	}
	jsonHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(slogmulti.Fanout(console, jsonHandler)), logFile, nil
}

type LogEntry struct {
	Timestamp string `json:"time"`
	Tool      string `json:"msg"`
	Program   string `json:"PROGRAM"`
	Applet    string `json:"APPLET"`
	Revision  string `json:"REVISION"`
	Folder    string `json:"FOLDER"`
	Status    string `json:"STATUS"`
	ID        string `json:"ID"`
}

// ParseLogFile reads the JSON lines written by NewLogger. Lines that are
// not JSON are skipped; a missing file yields no entries.
func ParseLogFile(logPath string) []LogEntry {
	f, err := os.Open(logPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// StageHasCompleted reports the id of the last COMPLETED entry for applet
// built at revision into folder.
func StageHasCompleted(entries []LogEntry, applet, revision, folder string) (string, bool) {
	id, done := "", false
	for _, e := range entries {
		if e.Applet != applet || e.Revision != revision || e.Folder != folder {
			continue
		}
		switch e.Status {
		case StatusCompleted:
			id, done = e.ID, true
		case StatusStarted, StatusFailed:
			id, done = "", false
		}
	}
	return id, done
}
