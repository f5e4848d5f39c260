package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "aloud").CacheDir()
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return filepath.Join(dir, "aloud.log"), nil
}

// setupLog writes a debug log when ALOUD_DEBUG or --debug is set.
// Otherwise only warnings and errors reach stderr.
func setupLog() (func() error, error) {
	log.SetReportTimestamp(false)

	if os.Getenv("ALOUD_DEBUG") == "" && !hasDebugFlag(os.Args[1:]) {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.WarnLevel)
		return func() error { return nil }, nil
	}

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		// log disabled
		log.SetOutput(io.Discard)
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	log.SetLevel(log.DebugLevel)
	return f.Close, nil
}

// hasDebugFlag looks for --debug before cobra has parsed flags.
func hasDebugFlag(args []string) bool {
	for _, a := range args {
		if a == "--debug" || a == "--debug=true" {
			return true
		}
	}
	return false
}
