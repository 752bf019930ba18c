package metadata

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"io/fs"
	"net/mail"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/matzehuels/depscan/pkg/errors"
)

// maxMetadataSize bounds how much of a single metadata member is read.
const maxMetadataSize = 8 << 20

// coreMetadata is the subset of the core metadata fields depscan uses.
type coreMetadata struct {
	Name           string
	Summary        string
	RequiresDist   []string
	RequiresPython string
}

// readWheel reads <name>.dist-info/METADATA from a wheel.
func readWheel(file string) (*coreMetadata, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNoMetadata, err, "open wheel %s", path.Base(file))
	}
	defer zr.Close()

	for _, f := range zr.File {
		dir, name := path.Split(f.Name)
		if name != "METADATA" || strings.Count(f.Name, "/") != 1 || !strings.HasSuffix(dir, ".dist-info/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNoMetadata, err, "read %s", f.Name)
		}
		defer rc.Close()
		return parseCoreMetadata(rc)
	}
	return nil, errors.New(errors.ErrCodeNoMetadata, "no dist-info METADATA in %s", path.Base(file))
}

// sdistMembers collects the members of interest while walking an sdist.
type sdistMembers struct {
	pkgInfo     []byte
	requiresTxt []byte
}

func (m *sdistMembers) visit(name string, r io.Reader) error {
	name = strings.TrimPrefix(name, "./")
	parts := strings.Split(name, "/")
	switch {
	case len(parts) == 2 && parts[1] == "PKG-INFO" && m.pkgInfo == nil:
		data, err := io.ReadAll(io.LimitReader(r, maxMetadataSize))
		if err != nil {
			return err
		}
		m.pkgInfo = data
	case len(parts) >= 3 && parts[len(parts)-1] == "requires.txt" &&
		strings.HasSuffix(parts[len(parts)-2], ".egg-info") && m.requiresTxt == nil:
		data, err := io.ReadAll(io.LimitReader(r, maxMetadataSize))
		if err != nil {
			return err
		}
		m.requiresTxt = data
	}
	return nil
}

// readSdist reads PKG-INFO from a source distribution. When PKG-INFO does not
// declare Requires-Dist, the egg-info requires.txt is used instead.
func readSdist(file, filename string) (*coreMetadata, error) {
	if filename == "" {
		filename = path.Base(file)
	}
	var members sdistMembers
	err := WalkArchive(file, filename, func(name string, _ fs.FileMode, r io.Reader) error {
		return members.visit(name, r)
	})
	if errors.Is(err, errors.ErrCodeUnsupported) {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNoMetadata, err, "read %s", filename)
	}
	if members.pkgInfo == nil {
		return nil, errors.New(errors.ErrCodeNoMetadata, "no PKG-INFO in %s", filename)
	}

	info, err := parseCoreMetadata(bytes.NewReader(members.pkgInfo))
	if err != nil {
		return nil, err
	}
	if len(info.RequiresDist) == 0 && members.requiresTxt != nil {
		info.RequiresDist = parseRequiresTxt(members.requiresTxt)
	}
	return info, nil
}

// WalkArchive calls visit for every regular file in the archive at file.
// The format follows the suffix of filename (of file when empty): zip and
// wheel, or tar, optionally compressed with gzip, bzip2 or xz.
func WalkArchive(file, filename string, visit func(name string, mode fs.FileMode, r io.Reader) error) error {
	if filename == "" {
		filename = path.Base(file)
	}
	switch {
	case strings.HasSuffix(filename, ".zip"), strings.HasSuffix(filename, ".whl"):
		return walkZip(file, visit)
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		return walkTar(file, visit, func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) })
	case strings.HasSuffix(filename, ".tar.bz2"), strings.HasSuffix(filename, ".tbz"):
		return walkTar(file, visit, func(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil })
	case strings.HasSuffix(filename, ".tar.xz"), strings.HasSuffix(filename, ".txz"):
		return walkTar(file, visit, func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) })
	case strings.HasSuffix(filename, ".tar"):
		return walkTar(file, visit, func(r io.Reader) (io.Reader, error) { return r, nil })
	default:
		return errors.New(errors.ErrCodeUnsupported, "unsupported archive %s", filename)
	}
}

func walkZip(file string, visit func(string, fs.FileMode, io.Reader) error) error {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if !f.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = visit(f.Name, f.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func walkTar(file string, visit func(string, fs.FileMode, io.Reader) error, decompress func(io.Reader) (io.Reader, error)) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := decompress(bufio.NewReader(f))
	if err != nil {
		return err
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := visit(hdr.Name, hdr.FileInfo().Mode(), tr); err != nil {
			return err
		}
	}
}

// parseCoreMetadata parses an RFC 822 style METADATA or PKG-INFO document.
func parseCoreMetadata(r io.Reader) (*coreMetadata, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxMetadataSize))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNoMetadata, err, "read metadata")
	}
	// The body (long description) is irrelevant; make sure the header block
	// is terminated even when there is none.
	data = append(bytes.TrimRight(data, "\r\n"), '\n', '\n')

	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNoMetadata, err, "parse metadata headers")
	}
	if msg.Header.Get("Metadata-Version") == "" && msg.Header.Get("Name") == "" {
		return nil, errors.New(errors.ErrCodeNoMetadata, "not a core metadata document")
	}

	info := &coreMetadata{
		Name:           strings.TrimSpace(msg.Header.Get("Name")),
		Summary:        strings.TrimSpace(msg.Header.Get("Summary")),
		RequiresPython: strings.TrimSpace(msg.Header.Get("Requires-Python")),
	}
	for _, req := range msg.Header["Requires-Dist"] {
		if req = strings.TrimSpace(req); req != "" {
			info.RequiresDist = append(info.RequiresDist, req)
		}
	}
	return info, nil
}

// parseRequiresTxt converts setuptools' egg-info requires.txt into
// Requires-Dist strings. Section headers have the form [extra:marker].
func parseRequiresTxt(data []byte) []string {
	var out []string
	marker := ""
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			marker = sectionMarker(line[1 : len(line)-1])
			continue
		}
		if marker != "" {
			line += " ; " + marker
		}
		out = append(out, line)
	}
	return out
}

func sectionMarker(section string) string {
	extra, env, _ := strings.Cut(section, ":")
	extra, env = strings.TrimSpace(extra), strings.TrimSpace(env)
	switch {
	case extra != "" && env != "":
		return fmt.Sprintf(`extra == "%s" and (%s)`, extra, env)
	case extra != "":
		return fmt.Sprintf(`extra == "%s"`, extra)
	default:
		return env
	}
}
