package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/yourusername/bedrockd/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	initOnce sync.Once
	root     *slog.Logger
	rotator  io.Closer
)

// Init builds the process-wide slog logger from the logging config and
// installs it as the slog default. With a file configured, output goes
// to both stdout and a lumberjack-rotated file. The stdlib log package
// is redirected into slog so component code can keep its log.Printf
// prefixes. Repeated calls return the logger from the first.
func Init(cfg config.LoggingConfig) (*slog.Logger, error) {
	initOnce.Do(func() {
		out := io.Writer(os.Stdout)
		if file := strings.TrimSpace(cfg.File); file != "" {
			lj := &lumberjack.Logger{
				Filename:   file,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			rotator = lj
			out = io.MultiWriter(os.Stdout, lj)
		}

		opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: true}
		var handler slog.Handler
		if strings.EqualFold(cfg.Format, "text") {
			handler = slog.NewTextHandler(out, opts)
		} else {
			handler = slog.NewJSONHandler(out, opts)
		}

		root = slog.New(handler)
		slog.SetDefault(root)
		log.SetFlags(0)
		log.SetOutput(stdlogBridge{root})
	})

	return L(), nil
}

// L returns the configured logger. Before Init it returns a discard
// logger so library code never has to nil-check.
func L() *slog.Logger {
	if root == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return root
}

// Close releases the rotated log file, if one was opened.
func Close() error {
	if rotator == nil {
		return nil
	}
	return rotator.Close()
}

// stdlogBridge feeds stdlib log output through slog at info level.
type stdlogBridge struct {
	logger *slog.Logger
}

func (b stdlogBridge) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		b.logger.Info(msg)
	}
	return len(p), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
