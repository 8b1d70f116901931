package utils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// EnsureDir creates path with perm if it is missing and reports whether it was created.
// An existing non-directory at path is an error.
func EnsureDir(path string, perm fs.FileMode) (bool, error) {
	if path == "" {
		return false, fs.ErrInvalid
	}
	st, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, err
		}
		if err := os.MkdirAll(path, perm); err != nil {
			return false, err
		}
		return true, nil
	}
	if !st.IsDir() {
		return false, fs.ErrExist
	}
	return false, nil
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func IsNonEmptyFile(dir, file string) bool {
	if dir == "" || file == "" {
		return false
	}
	p := filepath.Join(dir, file)
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// MoveFile renames src to dst, falling back to copy and remove when the
// rename crosses filesystems.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Debugf("rename %s -> %s failed, copying instead: %v", src, dst, err)
	} else {
		return err
	}

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("copied %s but failed to remove it: %w", src, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
