/*
Package log provides structured logging for the storage core using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("changelog")                │          │
	│  │  - WithAccount(7)                            │          │
	│  │  - WithCollection(CollectionEmail)           │          │
	│  │  - WithTaskID("task-def456")                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "task",                     │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "lease acquired"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF lease acquired component=task  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all storage packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithAccount: Add account id context
  - WithCollection: Add collection tag context
  - WithTaskID: Add task id context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "evaluating index mutation: field=subject op=add"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "batch committed: account=7 change_id=884"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "quota at 90% for account 7"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "failed to unarchive mailbox record: checksum mismatch"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to open kv backend: %v"

# Usage

Initializing the Logger:

	import "github.com/cuemby/warren/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/storectl.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("store opened")
	log.Debug("checking lease expiry")
	log.Warn("blob purge queue backing up")
	log.Error("failed to connect to backend")
	log.Fatal("cannot start without a configured kv backend") // Exits process

Structured Logging:

	log.Logger.Info().
		Uint32("account", 7).
		Int("mutations", 3).
		Msg("index diff applied")

	log.Logger.Error().
		Err(err).
		Uint32("account", 7).
		Msg("commit point failed")

Component Loggers:

	// Create component-specific logger
	changelogLog := log.WithComponent("changelog")
	changelogLog.Info().Msg("sync query resolved")
	changelogLog.Debug().Str("token", tok).Msg("decoded sync token")

	// Multiple context fields
	taskLog := log.WithComponent("task").
		With().Str("task_id", "task-123").Logger()
	taskLog.Info().Msg("starting blob purge")
	taskLog.Error().Err(err).Msg("task failed")

Context Logger Helpers:

	// Account-specific logs
	acctLog := log.WithAccount(7)
	acctLog.Info().Msg("quota recalculated")

	// Collection-specific logs
	collLog := log.WithCollection(uint8(keys.CollectionEmail))
	collLog.Info().Msg("index rebuilt")

	// Task-specific logs
	taskLog := log.WithTaskID("task-def456")
	taskLog.Info().Msg("task started")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/cuemby/warren/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("store opening")

		// Component-specific logging
		taskLog := log.WithComponent("task")
		taskLog.Info().
			Uint32("account", 7).
			Int("due_count", 5).
			Msg("scanning due tasks")

		// Error logging
		err := errors.New("lease expired")
		log.Logger.Error().
			Err(err).
			Str("component", "task").
			Msg("failed to renew lease")

		log.Info("store closed")
	}

# Integration Points

This package integrates with:

  - internal/store/task: each worker logs through a WithTaskID logger
  - internal/store/blob: Purge logs removed content at debug level via WithHash
  - internal/config: uses the level constants for its default log level

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"batch","account":7,"time":"2026-07-31T10:30:00Z","message":"commit point reached"}
	{"level":"info","component":"task","task_id":"task-123","time":"2026-07-31T10:30:01Z","message":"lease acquired"}
	{"level":"error","component":"kv","account":7,"time":"2026-07-31T10:30:02Z","message":"write conflict, retrying"}

Console Format (Development):

	10:30:00 INF commit point reached component=batch account=7
	10:30:01 INF lease acquired component=task task_id=task-123
	10:30:02 ERR write conflict, retrying component=kv account=7

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Provides stack trace information
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or id fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

# Security

Log Content:
  - Never log message bodies, credentials, or raw blob bytes
  - Redact tokens and secrets before logging
  - Review logs before sharing externally

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
