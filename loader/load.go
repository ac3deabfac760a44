package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/petal-labs/eventsheet/runtime"
	"github.com/petal-labs/eventsheet/sheet"
)

// ParseError reports a file that could not be decoded.
type ParseError struct {
	Path   string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s %s: %v", e.Format, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []sheet.Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := sheet.Errors(e.Diagnostics)
	if len(errs) == 0 {
		return "validation failed"
	}
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}

// Load reads and decodes the sheet at path without validating it.
func Load(path string) (*sheet.Definition, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return Parse(data, path, format)
}

// Parse decodes data in the given format. path is used in messages and
// HCL diagnostics only.
func Parse(data []byte, path string, format Format) (*sheet.Definition, error) {
	var (
		def sheet.Definition
		err error
	)
	switch format {
	case FormatJSON:
		err = decodeJSON(data, &def)
	case FormatYAML:
		var jsonData []byte
		if jsonData, err = yamlToJSON(data); err == nil {
			err = decodeJSON(jsonData, &def)
		}
	case FormatHCL:
		err = decodeHCL(data, path, &def)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Format: format, Err: err}
	}
	return &def, nil
}

// LoadGame loads, validates and builds the sheet at path. Validation
// errors are returned as a *DiagnosticError; warnings are returned with
// the game.
func LoadGame(path string, ext runtime.Extensions) (*runtime.Game, []sheet.Diagnostic, error) {
	def, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	diags := def.Validate(ext)
	if sheet.HasErrors(diags) {
		return nil, diags, &DiagnosticError{Diagnostics: diags}
	}
	game, err := def.Build()
	if err != nil {
		return nil, diags, fmt.Errorf("building %s: %w", path, err)
	}
	return game, diags, nil
}

func decodeJSON(data []byte, def *sheet.Definition) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(def)
}

func decodeHCL(data []byte, path string, def *sheet.Definition) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return diags
	}
	if diags := gohcl.DecodeBody(file.Body, nil, def); diags.HasErrors() {
		return diags
	}
	return nil
}
