// Package logging provides structured logging for ConsultEase Core.
//
// It wraps log/slog with configuration-driven format and level selection
// and stamps every record with the service name and version. Components
// that need logging accept a narrow interface rather than this concrete
// type so tests can substitute their own recorders.
package logging
