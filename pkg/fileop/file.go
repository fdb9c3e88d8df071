package fileop

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func IsDir(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.Mode().IsDir()
}

// Overwrite writes data to path, creating missing parent directories.
func Overwrite(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	return errors.Wrapf(os.WriteFile(path, data, 0666), "writing %s", path)
}
