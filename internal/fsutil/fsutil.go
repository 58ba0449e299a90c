package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// defaultDirMode is used for directories created during tree copies.
const defaultDirMode os.FileMode = 0o755

// CopyTree recursively copies the directory at src into dst, creating dst.
// File modes are preserved; symlinks are not followed and are skipped.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, relative)

		if entry.IsDir() {
			return os.MkdirAll(target, defaultDirMode)
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		return copyFile(path, target, info.Mode())
	})
}

// CopyFile copies a single regular file, preserving the source mode.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	return copyFile(src, dst, info.Mode())
}

// copyFile copies src to dst with the provided mode.
func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	if err = os.MkdirAll(filepath.Dir(dst), defaultDirMode); err != nil {
		return err
	}

	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s: %w", src, err)
	}

	return out.Close()
}
