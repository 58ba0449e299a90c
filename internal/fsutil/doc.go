// Package fsutil provides small filesystem helpers for copying files and
// directory trees with explicit source and destination paths.
package fsutil
