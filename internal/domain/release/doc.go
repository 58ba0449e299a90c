// Package release contains domain types for release channel selection.
//
// A Channel is a named version stream with a stability hint derived from its
// name. Choose resolves operator input into a Choice carrying a provenance
// tag, so fallback-to-default is observable rather than silent.
package release
