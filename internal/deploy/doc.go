// Package deploy implements the two mutually exclusive deployment strategies:
// a host-service variant that lays out the server tree and manages a systemd
// unit, and a container variant that builds and runs an image bound to the
// host network. Both are driven through an injectable command Runner.
package deploy
