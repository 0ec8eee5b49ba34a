// Package logging provides structured logging for the fieldsync server and client.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used throughout the server.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Frame dumps, HTTP request details, ignored client messages
//   - Info: Connections, joins, leaves, server lifecycle
//   - Warn: Malformed client input, dropped connections, repeated joins
//   - Error: Registry invariant violations, startup failures
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Player joined",
//	    zap.String("remote_addr", "192.168.1.100:53211"),
//	    zap.String("player_id", id),
//	    zap.String("nickname", "Ann"),
//	)
//
// # Specialized Logging
//
// Connection Logging:
//
//	logging.LogConnection(remoteAddr, "connection_accepted")
//	logging.LogConnection(remoteAddr, "websocket_upgraded")
//
// Session Logging:
//
//	logging.LogSessionEvent(remoteAddr, playerID, "joined")
//
// WebSocket Frame Logging (debug level only):
//
//	logging.LogWebSocketMessage(remoteAddr, protocol.DirectionInbound, opcode, payload)
//
// # Configuration
//
// Initialize logging at server startup:
//
//	if err := logging.InitializeWithFile("info", "/var/log/fieldsync.log"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to FIELDSYNC_LOG_LEVEL; when that is empty too
// and no file is given, logging is silent.
//
// The terminal client owns the screen, so it logs to a file only:
//
//	err := logging.InitializeFileOnly("debug", "client.log")
//
// # Output Format
//
// Console output is human-readable. The optional log file receives JSON
// entries and is rotated by lumberjack at 10 MB, keeping 3 backups for
// at most 7 days.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize and SetLogger
// are meant to be called once before any goroutines start.
package logging
