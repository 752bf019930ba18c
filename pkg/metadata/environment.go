package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matzehuels/depscan/pkg/pep440"
)

// Environment describes the interpreter the analysis targets. It decides
// which platform wheels are installable and supplies marker values.
type Environment struct {
	Python    string   // "X.Y", e.g. "3.8"
	Platforms []string // platform tags, most specific first
}

// DefaultEnvironment is CPython 3.8 on glibc x86_64 Linux.
func DefaultEnvironment() Environment {
	return NewEnvironment("3.8", "x86_64", 31)
}

// NewEnvironment returns a CPython environment on Linux for arch with
// manylinux support up to glibc 2.<glibcMinor>.
func NewEnvironment(python, arch string, glibcMinor int) Environment {
	var plats []string
	for minor := glibcMinor; minor >= 5; minor-- {
		plats = append(plats, fmt.Sprintf("manylinux_2_%d_%s", minor, arch))
		switch minor {
		case 17:
			plats = append(plats, "manylinux2014_"+arch)
		case 12:
			plats = append(plats, "manylinux2010_"+arch)
		case 5:
			plats = append(plats, "manylinux1_"+arch)
		}
	}
	plats = append(plats, "linux_"+arch)
	return Environment{Python: python, Platforms: plats}
}

func (e Environment) version() (major, minor int) {
	maj, min, _ := strings.Cut(e.Python, ".")
	major, _ = strconv.Atoi(maj)
	minor, _ = strconv.Atoi(min)
	return major, minor
}

// Markers returns the PEP 508 marker environment for e.
func (e Environment) Markers() pep440.Environment {
	return pep440.DefaultEnvironment(e.Python)
}

// SupportsWheel reports whether the wheel named filename installs in e.
func (e Environment) SupportsWheel(filename string) bool {
	t, ok := parseWheelTags(filename)
	return ok && e.supports(t)
}

func (e Environment) supports(t wheelTags) bool {
	for _, py := range t.python {
		for _, abi := range t.abi {
			for _, plat := range t.platform {
				if e.supportsTag(py, abi, plat) {
					return true
				}
			}
		}
	}
	return false
}

func (e Environment) supportsTag(py, abi, plat string) bool {
	if !e.supportsPlatform(plat) {
		return false
	}
	major, minor := e.version()
	nodot := fmt.Sprintf("%d%d", major, minor)

	switch abi {
	case "none":
		return py == "py"+nodot || py == fmt.Sprintf("py%d", major) || py == "cp"+nodot
	case "abi3":
		if !strings.HasPrefix(py, fmt.Sprintf("cp%d", major)) {
			return false
		}
		n, err := strconv.Atoi(strings.TrimPrefix(py, fmt.Sprintf("cp%d", major)))
		return err == nil && n <= minor
	case "cp" + nodot, "cp" + nodot + "m":
		return py == "cp"+nodot
	}
	return false
}

func (e Environment) supportsPlatform(plat string) bool {
	if plat == "any" {
		return true
	}
	for _, p := range e.Platforms {
		if p == plat {
			return true
		}
	}
	return false
}
