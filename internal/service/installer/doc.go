// Package installer orchestrates provisioning and upgrades of the extension
// server stack: it resolves a release channel, checks for port conflicts on
// fresh installs, stages both artifact bundles, preserves the configuration
// directory across the destructive swap, and drives the selected deployment
// strategy through stop/replace/start.
package installer
