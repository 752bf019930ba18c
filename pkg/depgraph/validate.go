package depgraph

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/matzehuels/depscan/pkg/errors"
)

//go:embed dump.schema.json
var dumpSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

// Result holds the outcome of Validate.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one schema violation.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(dumpSchema))
	})
	return compiledSchema, schemaErr
}

// Validate checks an encoded artifact against the DepInfoDump schema. It
// also requires exactly one entry at depth 0, named by root_pkg.
func Validate(data []byte) (*Result, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "compile dump schema")
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "load dump")
	}

	out := &Result{Valid: res.Valid()}
	for _, verr := range res.Errors() {
		field := verr.Field()
		if field == "" || field == "(root)" {
			field = "root"
		}
		out.Errors = append(out.Errors, ValidationError{Path: field, Message: verr.Description()})
	}
	if !out.Valid {
		return out, nil
	}

	d, err := ReadDump(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var roots []string
	for name, info := range d.Packages {
		if info.Depth == 0 {
			roots = append(roots, name)
		}
	}
	switch {
	case len(roots) != 1:
		out.Errors = append(out.Errors, ValidationError{Path: "dep_info", Message: fmt.Sprintf("expected one package at depth 0, found %d", len(roots))})
	case roots[0] != d.RootPackage:
		out.Errors = append(out.Errors, ValidationError{Path: "root_pkg", Message: fmt.Sprintf("root_pkg %q is not the depth 0 package %q", d.RootPackage, roots[0])})
	}
	out.Valid = len(out.Errors) == 0
	return out, nil
}
