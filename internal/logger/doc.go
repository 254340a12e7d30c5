// Package logger wraps zap for the formulary commands:
//   - a global sugared logger writing console lines to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and convenience functions (InfoKV, ErrorKV, etc.).
//
// Services take a context and pull the logger out of it, so every
// line carries the service name and whatever fields were attached upstream.
package logger
