// Package logger provides the structured logging interface used across searchtweets.
//
// It wraps zerolog behind a small Logger interface so components can take an
// injected logger (or a NopLogger / TestLogger in tests) instead of reaching
// for a global. Console output is written to stderr because stdout carries
// the NDJSON result stream when --print-stream is on.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//	logger.Info("search started")
//	logger.WithField("endpoint", endpoint).Warn("rate limited")
//
// Structured fields:
//
//	log := logger.GetLogger().WithField("component", "stream")
//	log.InfoWithFields("page fetched", map[string]interface{}{
//	    "requests_issued": 3,
//	    "items":           100,
//	})
//
// Configuration options (config.LoggingConfig):
//   - Level: debug, info, warn, error, disabled
//   - File: path to an additional log file (appended)
//   - Format: "json" for raw JSON lines on stderr, anything else for the colored console writer
package logger
