package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// copyFile copies src to dst through a temporary file in dst's directory,
// then renames it into place so concurrent readers never observe a partial
// file. The source's last-write time is preserved for staleness checks.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}

	if _, err := io.Copy(tmp, srcFile); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("copy %s: %w", src, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Chtimes(tmp.Name(), srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Chmod(dst, srcInfo.Mode().Perm())
}
