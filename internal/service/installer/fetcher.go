package installer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/logger"
)

const (
	// extractDirMode is the permission for directories created during extraction.
	extractDirMode os.FileMode = 0o755

	// uiDistDir is the directory inside the UI release archive holding the
	// built frontend.
	uiDistDir = "dist"
)

var (
	errUnexpectedStatus = errors.New("unexpected http status")
	errEntryEscapes     = errors.New("archive entry escapes extraction target")
	errEmptyArchive     = errors.New("archive contains no entries")
)

// Fetcher retrieves and unpacks artifact bundles. It performs no internal
// retries: a fetch failure is fatal for the run and handled by the caller.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with the provided network timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch downloads the bundle archive to its local archive path.
// Transport and status failures are reported as NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, bundle *install.Bundle) error {
	logger.InfoKV(ctx, "Downloading bundle", "kind", bundle.Kind.String(), "url", bundle.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bundle.URL, http.NoBody)
	if err != nil {
		return &install.NetworkError{URL: bundle.URL, Err: err}
	}

	response, err := f.client.Do(req)
	if err != nil {
		return &install.NetworkError{URL: bundle.URL, Err: err}
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return &install.NetworkError{
			URL: bundle.URL,
			Err: fmt.Errorf("%w: %s", errUnexpectedStatus, response.Status),
		}
	}

	archive, err := os.Create(bundle.Archive)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}

	if _, err = io.Copy(archive, response.Body); err != nil {
		_ = archive.Close()

		return &install.NetworkError{URL: bundle.URL, Err: err}
	}

	return archive.Close()
}

// Extract unpacks the bundle archive into its extraction target.
// Corrupt or incomplete archives are reported as ExtractionError.
func (f *Fetcher) Extract(ctx context.Context, bundle *install.Bundle) error {
	logger.InfoKV(ctx, "Extracting bundle", "kind", bundle.Kind.String(), "target", bundle.ExtractDir)

	reader, err := zip.OpenReader(bundle.Archive)
	if err != nil {
		return &install.ExtractionError{Archive: bundle.Archive, Err: err}
	}

	defer func() {
		_ = reader.Close()
	}()

	if len(reader.File) == 0 {
		return &install.ExtractionError{Archive: bundle.Archive, Err: errEmptyArchive}
	}

	for _, entry := range reader.File {
		if err = extractEntry(entry, bundle.ExtractDir); err != nil {
			return &install.ExtractionError{Archive: bundle.Archive, Err: err}
		}
	}

	return nil
}

// extractEntry writes a single archive entry under target, rejecting paths
// that would escape it.
func extractEntry(entry *zip.File, target string) error {
	destination := filepath.Join(target, filepath.Clean(entry.Name))

	if !strings.HasPrefix(destination, filepath.Clean(target)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", errEntryEscapes, entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(destination, extractDirMode)
	}

	if err := os.MkdirAll(filepath.Dir(destination), extractDirMode); err != nil {
		return err
	}

	source, err := entry.Open()
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	output, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode())
	if err != nil {
		return err
	}

	//nolint:gosec // Bundles come from the configured release source; size is bounded by the artifact itself.
	if _, err = io.Copy(output, source); err != nil {
		_ = output.Close()

		return err
	}

	return output.Close()
}

// ServerTreeRoot locates the server source tree inside an extraction target.
// Repository archives unpack into a single `<repo>-<channel>` directory; when
// exactly one directory is present it is the tree, otherwise the target
// itself is.
func ServerTreeRoot(extractDir string) (string, error) {
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return "", err
	}

	var directories []string

	for _, entry := range entries {
		if entry.IsDir() {
			directories = append(directories, entry.Name())
		}
	}

	if len(directories) == 1 && len(entries) == 1 {
		return filepath.Join(extractDir, directories[0]), nil
	}

	return extractDir, nil
}

// UIDistRoot locates the built frontend inside an extracted UI release.
// Release archives carry a dist directory; archives without one are used as-is.
func UIDistRoot(extractDir string) string {
	dist := filepath.Join(extractDir, uiDistDir)
	if _, err := os.Stat(dist); err == nil {
		return dist
	}

	return extractDir
}
