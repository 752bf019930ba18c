package analysis

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/metadata"
)

// Unpack extracts the wheel, zip or tarball at archive into dir. Members
// that would land outside dir are rejected.
func Unpack(archive, dir string) error {
	return metadata.WalkArchive(archive, "", func(name string, mode fs.FileMode, r io.Reader) error {
		target, err := memberPath(dir, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm()|0o600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

func memberPath(dir, name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.New(errors.ErrCodeInvalidPath, "archive member %q escapes the target directory", name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}
