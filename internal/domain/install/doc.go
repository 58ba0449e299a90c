// Package install contains core domain types for provisioning: the detected
// installation state, the deployment mode, artifact bundles, the transient
// config backup, and the error taxonomy shared by all installer stages.
package install
