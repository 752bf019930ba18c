package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/errors"
)

func flaskDump() *depgraph.Dump {
	return &depgraph.Dump{
		RootPackage: "Flask",
		Packages: map[string]depgraph.PackageInfo{
			"Flask": {Version: "1.0", Depth: 0, Sources: []string{"https://files/flask.whl"}, Deps: []depgraph.DepRecord{
				{Name: "Werkzeug", Version: "0.16", Constraint: "Werkzeug (>=0.14)"},
				{Name: "click", Version: "7.0", Constraint: "click (>=5.1)"},
			}},
			"Werkzeug": {Version: "0.16", Depth: 1, Deps: []depgraph.DepRecord{}},
			"click":    {Version: "7.0", Depth: 1, Deps: []depgraph.DepRecord{}},
		},
	}
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(flaskDump(), Options{})
	for _, want := range []string{
		"digraph G {\n",
		"  \"Flask\" [label=\"Flask\\n1.0\", penwidth=2, fillcolor=lightyellow];\n",
		"  \"Werkzeug\" [label=\"Werkzeug\\n0.16\"];\n",
		"  \"Flask\" -> \"Werkzeug\";\n",
		"  \"Flask\" -> \"click\";\n",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
	if strings.Index(dot, `"Werkzeug" [`) > strings.Index(dot, `"click" [`) {
		t.Error("nodes at the same depth should be ordered by name")
	}

	detailed := ToDOT(flaskDump(), Options{Detailed: true})
	if !strings.Contains(detailed, `label="Flask\n1.0\ndepth: 0\nsources: 1"`) {
		t.Errorf("detailed label missing:\n%s", detailed)
	}
	if !strings.Contains(detailed, `"Flask" -> "click" [label="click (>=5.1)"];`) {
		t.Errorf("detailed edge label missing:\n%s", detailed)
	}
}

func TestRender(t *testing.T) {
	ctx := context.Background()

	dot, err := Render(ctx, flaskDump(), FormatDOT, Options{})
	if err != nil {
		t.Fatalf("Render(dot): %v", err)
	}
	if !bytes.HasPrefix(dot, []byte("digraph G {")) {
		t.Errorf("Render(dot) = %q", dot)
	}

	svg, err := Render(ctx, flaskDump(), FormatSVG, Options{})
	if err != nil {
		t.Fatalf("Render(svg): %v", err)
	}
	if !bytes.Contains(svg, []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 `)) {
		t.Errorf("SVG root not normalized: %.200s", svg)
	}
	if !bytes.Contains(svg, []byte("Werkzeug")) {
		t.Error("SVG missing node text")
	}

	if _, err := Render(ctx, flaskDump(), "gif", Options{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Render(gif) err = %v, want INVALID_INPUT", err)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" height="20pt" viewBox="0.00 0.00 100.50 200.00" xmlns="x"><g/></svg>`)
	got := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100.50 200.00" width="100" height="200"><g/></svg>`
	if got != want {
		t.Errorf("normalizeViewBox = %s, want %s", got, want)
	}
	plain := []byte("<svg><g/></svg>")
	if !bytes.Equal(normalizeViewBox(plain), plain) {
		t.Error("svg without viewBox should be unchanged")
	}
}
