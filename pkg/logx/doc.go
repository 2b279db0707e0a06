// Package logx configures mailblast's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Sinks hot-swappable via Service.Apply() during config reload
package logx
