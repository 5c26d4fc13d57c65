// Package logger configures the process-wide logrus logger.
package logger

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Options controls Init.
type Options struct {
	Level string // logrus level name; empty means info
	File  string // optional file tee; empty logs to stdout only
	Debug bool   // forces debug level
}

// Init sets formatter, level and output on the standard logger. The
// returned closer releases the log file, if any.
func Init(opts Options) (io.Closer, error) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := log.InfoLevel
	if opts.Level != "" {
		lv, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level = lv
	}
	if opts.Debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if opts.File == "" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}

	if dir := filepath.Dir(opts.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.SetOutput(os.Stdout)
			log.Warnf("cannot create log dir %s, logging to console only: %v", dir, err)
			return io.NopCloser(nil), nil
		}
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.SetOutput(os.Stdout)
		log.Warnf("cannot open log file %s, logging to console only: %v", opts.File, err)
		return io.NopCloser(nil), nil
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return f, nil
}
