package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Package loggers, one per level. They default to stderr so code that logs
// before InitLogging (or under test) still works; InitLogging points them at
// the configured log file.
var (
	InfoLogger    = log.New(os.Stderr, "INFO: ", log.Ldate|log.Ltime|log.LUTC)
	ErrorLogger   = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.LUTC)
	WarningLogger = log.New(os.Stderr, "WARNING: ", log.Ldate|log.Ltime|log.LUTC)
	DebugLogger   = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime|log.LUTC)
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
)

type LogConfig struct {
	LogDir     string
	MaxSize    int64 // Maximum size of log file in bytes
	MaxBackups int   // Maximum number of old log files to retain
	LogLevel   LogLevel
}

// InitLogging points the package loggers at a date-stamped file under the
// configured directory, mirrored to stdout, and starts the size monitor.
// Debug output stays disabled unless the configured level asks for it.
func InitLogging(config *LogConfig) error {
	if config == nil {
		config = &LogConfig{
			LogDir:     "logs",
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 5,
			LogLevel:   INFO,
		}
	}

	logFile, err := openLogFile(config)
	if err != nil {
		return err
	}

	go monitorLogSize(config, logFile)

	return nil
}

// openLogFile (re)points the package loggers at the current log file and
// returns its path.
func openLogFile(config *LogConfig) (string, error) {
	if err := os.MkdirAll(config.LogDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(config.LogDir, fmt.Sprintf("secureshare_%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}

	out := io.MultiWriter(os.Stdout, file)
	flags := log.Ldate | log.Ltime | log.LUTC

	InfoLogger = log.New(out, "INFO: ", flags)
	WarningLogger = log.New(out, "WARNING: ", flags)
	ErrorLogger = log.New(out, "ERROR: ", flags)
	if config.LogLevel <= DEBUG {
		DebugLogger = log.New(out, "DEBUG: ", flags)
	} else {
		DebugLogger = log.New(io.Discard, "DEBUG: ", flags)
	}

	return logFile, nil
}

func monitorLogSize(config *LogConfig, logFile string) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if info, err := os.Stat(logFile); err == nil {
			if info.Size() > config.MaxSize {
				rotateLog(config, logFile)
			}
		}
	}
}

func rotateLog(config *LogConfig, logFile string) {
	for i := config.MaxBackups - 1; i > 0; i-- {
		oldFile := fmt.Sprintf("%s.%d", logFile, i)
		newFile := fmt.Sprintf("%s.%d", logFile, i+1)
		os.Rename(oldFile, newFile)
	}

	os.Rename(logFile, logFile+".1")

	// Reopen so new writes land in a fresh file
	if _, err := openLogFile(config); err != nil {
		ErrorLogger.Printf("Log rotation failed: %v", err)
	}
}
