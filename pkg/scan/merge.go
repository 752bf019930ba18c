package scan

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/errors"
)

// MergeReport lists what Merge did with each source file.
type MergeReport struct {
	Copied    []string // new in dst
	Identical []string // already in dst with the same content
	Conflicts []string // in dst with different content, left untouched
	Replaced  []string // in dst with different content, overwritten
	Skipped   []string // directories, or dst entries that are directories
}

// Merge copies the artifacts in the data/ directory of every worker output
// in srcs into dst. Files already present in dst with identical content are
// skipped. Differing files are reported as conflicts, or replaced when
// overwrite is set.
func Merge(dst string, srcs []string, overwrite bool, logger *log.Logger) (*MergeReport, error) {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if fi, err := os.Stat(dst); err != nil || !fi.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "%s is not a directory", dst)
	}

	rep := &MergeReport{}
	for _, src := range srcs {
		dataDir := filepath.Join(src, DataDir)
		entries, err := os.ReadDir(dataDir)
		if err != nil {
			return rep, errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", dataDir)
		}
		copied := 0
		for _, e := range entries {
			srcPath := filepath.Join(dataDir, e.Name())
			dstPath := filepath.Join(dst, e.Name())
			if e.IsDir() {
				rep.Skipped = append(rep.Skipped, srcPath)
				continue
			}
			data, err := os.ReadFile(srcPath)
			if err != nil {
				return rep, errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", srcPath)
			}

			existing, err := os.ReadFile(dstPath)
			switch {
			case os.IsNotExist(err):
				rep.Copied = append(rep.Copied, e.Name())
			case err != nil:
				rep.Skipped = append(rep.Skipped, dstPath)
				continue
			case cache.Hash(existing) == cache.Hash(data):
				rep.Identical = append(rep.Identical, e.Name())
				continue
			case !overwrite:
				logger.Warn("conflicting artifact", "file", e.Name(), "src", srcPath)
				rep.Conflicts = append(rep.Conflicts, e.Name())
				continue
			default:
				rep.Replaced = append(rep.Replaced, e.Name())
			}

			if err := os.WriteFile(dstPath, data, 0o644); err != nil {
				return rep, errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", dstPath)
			}
			copied++
		}
		logger.Info("merged worker output", "src", src, "total", len(entries), "copied", copied)
	}

	for _, list := range [][]string{rep.Copied, rep.Identical, rep.Conflicts, rep.Replaced, rep.Skipped} {
		sort.Strings(list)
	}
	return rep, nil
}
