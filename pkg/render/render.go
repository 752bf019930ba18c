// Package render draws dependency dumps as node-link diagrams.
//
// [ToDOT] turns a [depgraph.Dump] into Graphviz DOT source with one box per
// package and one arrow per dependency record. [Render] lays the graph out
// in-process with go-graphviz and returns DOT, SVG, PDF or PNG bytes.
//
//	dot := render.ToDOT(dump, render.Options{Detailed: true})
//	svg, err := render.Render(ctx, dump, render.FormatSVG, render.Options{})
//
// PDF and PNG conversion shell out to rsvg-convert (librsvg).
package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/errors"
)

// Output formats.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
	FormatPDF = "pdf"
	FormatPNG = "png"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds depth and source counts to node labels and constraints
	// to edges.
	Detailed bool
	// Scale is the PNG scale factor. Defaults to 1.
	Scale float64
}

// ToDOT converts d to Graphviz DOT. Nodes are ordered by depth, then name;
// the root package is drawn bold.
func ToDOT(d *depgraph.Dump, opts Options) string {
	names := make([]string, 0, len(d.Packages))
	for name := range d.Packages {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := d.Packages[names[i]], d.Packages[names[j]]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return names[i] < names[j]
	})

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, name := range names {
		info := d.Packages[name]
		attrs := []string{fmt.Sprintf("label=%q", fmtLabel(name, info, opts.Detailed))}
		if name == d.RootPackage {
			attrs = append(attrs, "penwidth=2", "fillcolor=lightyellow")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", name, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, name := range names {
		for _, dep := range d.Packages[name].Deps {
			if opts.Detailed {
				fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", name, dep.Name, dep.Constraint)
			} else {
				fmt.Fprintf(&buf, "  %q -> %q;\n", name, dep.Name)
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(name string, info depgraph.PackageInfo, detailed bool) string {
	label := name + "\n" + info.Version
	if detailed {
		label += fmt.Sprintf("\ndepth: %d\nsources: %d", info.Depth, len(info.Sources))
	}
	return label
}

// Render draws d in format.
func Render(ctx context.Context, d *depgraph.Dump, format string, opts Options) ([]byte, error) {
	dot := ToDOT(d, opts)
	switch format {
	case FormatDOT:
		return []byte(dot), nil
	case FormatSVG, FormatPDF, FormatPNG:
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown format %q (want dot, svg, pdf or png)", format)
	}

	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatPDF:
		return rsvgConvert(ctx, svg, "pdf")
	case FormatPNG:
		scale := opts.Scale
		if scale <= 0 {
			scale = 1
		}
		return rsvgConvert(ctx, svg, "png", "-z", fmt.Sprintf("%.2f", scale))
	default:
		return svg, nil
	}
}

// RenderSVG lays out DOT source with Graphviz and returns SVG.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render")
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the drawing scales from the
// origin.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}

func rsvgConvert(ctx context.Context, svg []byte, format string, extraArgs ...string) ([]byte, error) {
	if _, err := exec.LookPath("rsvg-convert"); err != nil {
		return nil, errors.New(errors.ErrCodeUnsupported, "%s export requires rsvg-convert (librsvg)", format)
	}
	cmd := exec.CommandContext(ctx, "rsvg-convert", append([]string{"-f", format}, extraArgs...)...)
	cmd.Stdin = bytes.NewReader(svg)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "rsvg-convert: %s", strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}
