package universe

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

/**
 * @brief Replaces the file at path with data, keeping backups.
 *
 * The first save of a file copies it to path.bak, which is never touched
 * again. Every save copies the current file to path.prev. The new content
 * is written to path.temp and renamed over path.
 */
func WriteWithRotation(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	exists := fileExists(path)
	if exists && !fileExists(path+".bak") {
		if err := copyFile(path, path+".bak"); err != nil {
			return errors.Wrap(err, "backup")
		}
	}

	temp := path + ".temp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return err
	}

	if exists {
		if err := copyFile(path, path+".prev"); err != nil {
			return errors.Wrap(err, "previous copy")
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return os.Rename(temp, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
