/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

const logDate = `2006-01-02T15:04:05.000-07:00`

func configureLogging(cfg *Config) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: logDate,
	})

	if cfg.verbose {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
}

// logf only prints when --verbose is set.
func logf(format string, args ...any) {
	log.Infof(format, args...)
}

// drainErrors logs write failures reported by handlers until errs is closed.
func drainErrors(errs <-chan error) {
	for err := range errs {
		log.Errorf("SERVE: %v", err)
	}
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
