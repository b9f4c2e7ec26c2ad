package config

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogWriter returns where component logs go: a rotating file when
// log.file is set, stderr when verbose, and nowhere otherwise. The
// returned closer releases the file.
func (c *Config) LogWriter(verbose bool) (io.Writer, func() error) {
	var writers []io.Writer
	closer := func() error { return nil }

	if path := c.LogPath(); path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, lj)
		closer = lj.Close
	}
	if verbose {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		return io.Discard, closer
	case 1:
		return writers[0], closer
	}
	return io.MultiWriter(writers...), closer
}

// Logger builds a component logger with the bracketed prefix convention.
func Logger(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}
