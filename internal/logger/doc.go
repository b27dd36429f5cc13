// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - verbosity handling for the -v command line flag,
//   - convenience functions (Infof, WarnKV, etc.).
//
// Every component accepts a context and extracts the logger from it, so the
// phase or package being processed shows up in each line it logs.
package logger
