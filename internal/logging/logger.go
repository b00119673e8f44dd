// Package logging is the durable sink for finished benchmark runs: one
// JSON object per line, rotated by size.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const schemaVersion = 1

type Logger struct {
	mu     sync.Mutex
	writer io.WriteCloser
	seq    uint64

	toolName    string
	toolVersion string
	hostID      string
}

type Config struct {
	Dir         string
	MaxMB       int
	MaxFiles    int
	ToolName    string
	ToolVersion string
	HostID      string
}

func New(cfg Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	logPath := filepath.Join(cfg.Dir, "nsbench.jsonl")
	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   false,
	}

	return &Logger{
		writer:      lj,
		toolName:    cfg.ToolName,
		toolVersion: cfg.ToolVersion,
		hostID:      cfg.HostID,
	}, nil
}

func (l *Logger) Close() error {
	if l == nil || l.writer == nil {
		return nil
	}

	return l.writer.Close()
}

// Emit stamps the record's envelope and appends it as one JSONL line.
func (l *Logger) Emit(record Emittable) error {
	if l == nil || l.writer == nil {
		return fmt.Errorf("logger not initialized")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	l.seq++

	base := record.Base()
	base.TSUTC = now.Format(time.RFC3339Nano)
	base.TSUnixMS = now.UnixMilli()
	base.Seq = l.seq
	base.SchemaVersion = schemaVersion
	base.ToolName = l.toolName
	base.ToolVersion = l.toolVersion
	base.HostID = l.hostID
	base.ClockSource = "system"

	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}

	b = append(b, '\n')

	_, err = l.writer.Write(b)
	return err
}
