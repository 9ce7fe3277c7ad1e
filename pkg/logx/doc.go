// Package logx configures shelfbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Loggers created from a Service stay live across Apply() calls, so a config
// reload can change level and sinks without re-plumbing loggers.
package logx
