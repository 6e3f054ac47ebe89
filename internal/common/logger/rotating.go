package logger

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewRotatingLogger builds a Logger that writes two parallel files per
// process start under ~/.<appName>/logs/: a JSON-lines file and a
// human-readable file. Each file is written through a lumberjack.Logger so
// writes are buffered and synchronized safely; since every process start
// uses a fresh timestamped filename rather than rotating one file by size,
// lumberjack's own MaxBackups pruning never triggers across those
// filenames, so pruneOldFiles does the cross-process-start pruning to
// maxLogFiles pairs explicitly on startup. level follows the same names
// NewLogger accepts (debug/info/warn/error).
func NewRotatingLogger(appName, level string, maxLogFiles int) (*Logger, error) {
	dir, err := logDir(appName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if maxLogFiles <= 0 {
		maxLogFiles = 20
	}

	if err := pruneOldFiles(dir, appName, maxLogFiles); err != nil {
		return nil, err
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	jsonPath := filepath.Join(dir, appName+"-"+stamp+".jsonl")
	textPath := filepath.Join(dir, appName+"-"+stamp+".log")

	lvl, err := parseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	jsonEncoder := newEncoder("json")
	textEncoder := newEncoder("text")

	jsonSink := &lumberjack.Logger{Filename: jsonPath, Compress: false}
	textSink := &lumberjack.Logger{Filename: textPath, Compress: false}

	core := zapcore.NewTee(
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(jsonSink), lvl),
		zapcore.NewCore(textEncoder, zapcore.AddSync(textSink), lvl),
	)

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{zap: zapLogger, sugar: zapLogger.Sugar()}, nil
}

func logDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+appName, "logs"), nil
}

// pruneOldFiles keeps only the maxLogFiles-1 most recent <appName>-*.jsonl
// file pairs in dir, so that once the caller writes the new process start's
// pair there are maxLogFiles pairs in total. The matching .log sibling is
// deleted alongside each removed .jsonl file.
func pruneOldFiles(dir, appName string, maxLogFiles int) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	prefix := appName + "-"
	var stamps []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".jsonl") {
			stamps = append(stamps, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".jsonl"))
		}
	}
	sort.Strings(stamps) // ISO-like timestamps sort chronologically as strings

	if len(stamps) < maxLogFiles {
		return nil
	}
	toRemove := stamps[:len(stamps)-maxLogFiles+1]
	for _, stamp := range toRemove {
		_ = os.Remove(filepath.Join(dir, prefix+stamp+".jsonl"))
		_ = os.Remove(filepath.Join(dir, prefix+stamp+".log"))
	}
	return nil
}
