// Package logger wraps zap with a global sugared logger and helpers to carry
// a named logger through a context. Components call logger.WithName once at
// their entry point and use the package-level Info/Error/... functions after.
package logger
