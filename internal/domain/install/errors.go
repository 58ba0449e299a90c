package install

import "fmt"

// NetworkError reports a failed catalog or artifact fetch. A catalog fetch
// failure is recoverable (callers fall back to the default channel list);
// an artifact fetch failure is fatal for the run but happens before any
// destructive step, so the prior installation stays intact.
type NetworkError struct {
	// URL is the location that could not be fetched.
	URL string
	// Err is the underlying transport or status failure.
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// PortInUseError reports a reserved port already bound by another process.
// It is raised only on fresh installs and aborts the run before any
// filesystem mutation.
type PortInUseError struct {
	// Port is the conflicting listening port.
	Port uint32
}

// Error implements the error interface.
func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d is already in use on this host", e.Port)
}

// ExtractionError reports a corrupt or incomplete artifact archive.
// It is raised before the live root is touched.
type ExtractionError struct {
	// Archive is the local archive path that failed to unpack.
	Archive string
	// Err is the underlying extraction failure.
	Err error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// DataLossRiskError reports a config restore failure after the old tree is
// already gone. The staged backup is the only remaining copy of the operator's
// configuration and must never be deleted on this path, so the error carries
// its location for maximum visibility.
type DataLossRiskError struct {
	// StagingDir still holds the backed-up configuration.
	StagingDir string
	// Err is the underlying restore failure.
	Err error
}

// Error implements the error interface.
func (e *DataLossRiskError) Error() string {
	return fmt.Sprintf(
		"config restore failed after the old tree was removed: %v; your configuration is preserved at %s, recover it manually",
		e.Err, e.StagingDir)
}

// Unwrap exposes the underlying error.
func (e *DataLossRiskError) Unwrap() error {
	return e.Err
}

// ServiceControlError reports a failed stop/start/build/run operation.
// No automatic rollback is attempted: the host is left in whatever state
// the last successful step produced.
type ServiceControlError struct {
	// Op names the failed operation, e.g. "stop service" or "build image".
	Op string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ServiceControlError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ServiceControlError) Unwrap() error {
	return e.Err
}
