package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/eventsheet/loader"
	"github.com/petal-labs/eventsheet/registry"
	"github.com/petal-labs/eventsheet/sheet"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <sheet> [sheet...]",
		Short: "Check event sheets without running them",
		Long: `Loads each sheet and checks it against the built-in conditions, actions
and functions. Exits 1 when a sheet has errors, or warnings with --strict.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runValidate,
	}
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Fail on warnings as well as errors")
	return cmd
}

// sheetReport is the validation outcome of one file.
type sheetReport struct {
	File        string             `json:"file"`
	Diagnostics []sheet.Diagnostic `json:"diagnostics"`
}

func (r sheetReport) counts() (errs, warns int) {
	return len(sheet.Errors(r.Diagnostics)), len(sheet.Warnings(r.Diagnostics))
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	ext := registry.NewWithBuiltins()
	reports := make([]sheetReport, 0, len(args))
	for _, path := range args {
		def, err := loadSheet(path)
		if err != nil {
			return err
		}
		diags := def.Validate(ext)
		if diags == nil {
			diags = []sheet.Diagnostic{}
		}
		reports = append(reports, sheetReport{File: path, Diagnostics: diags})
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		writeReportsJSON(out, reports)
	} else {
		for _, r := range reports {
			if len(reports) > 1 {
				fmt.Fprintf(out, "== %s\n", r.File)
			}
			printDiagnosticsText(out, r.Diagnostics)
		}
	}

	for _, r := range reports {
		errs, warns := r.counts()
		if errs > 0 || (strict && warns > 0) {
			return exitError(exitValidation, "validation failed: %s", r.File)
		}
	}
	return nil
}

// writeReportsJSON prints the bare diagnostic array for a single sheet and
// one object per file otherwise.
func writeReportsJSON(w io.Writer, reports []sheetReport) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(reports) == 1 {
		_ = enc.Encode(reports[0].Diagnostics)
		return
	}
	_ = enc.Encode(reports)
}

func loadSheet(path string) (*sheet.Definition, error) {
	def, err := loader.Load(path)
	if err != nil {
		return nil, loadError(path, err)
	}
	return def, nil
}

// loadError maps loader failures to exit codes: 3 for a missing file, 4
// for an unreadable one.
func loadError(path string, err error) error {
	var perr *loader.ParseError
	if errors.Is(err, fs.ErrNotExist) {
		return exitError(exitFileNotFound, "file not found: %s", path)
	}
	if errors.Is(err, loader.ErrUnknownFormat) || errors.As(err, &perr) {
		return exitError(exitInputParse, "%v", err)
	}
	return exitError(exitRuntime, "loading %s: %v", path, err)
}

// printDiagnosticsText lists diagnostics one per line and closes with a
// verdict. run uses it too when a sheet fails to build.
func printDiagnosticsText(w io.Writer, diags []sheet.Diagnostic) {
	for _, d := range diags {
		line := fmt.Sprintf("%s [%s]: %s", strings.ToUpper(d.Severity), d.Code, d.Message)
		if d.Path != "" {
			line += " (at " + d.Path + ")"
		}
		fmt.Fprintln(w, line)
	}

	r := sheetReport{Diagnostics: diags}
	errs, warns := r.counts()
	switch {
	case errs > 0:
		fmt.Fprintf(w, "\n%s, %s\n", plural(errs, "error"), plural(warns, "warning"))
	case warns > 0:
		fmt.Fprintf(w, "\nValid! (%s)\n", plural(warns, "warning"))
	default:
		fmt.Fprintln(w, "Valid!")
	}
}

// plural formats a count with its noun, e.g. "1 warning" or "3 errors".
func plural(n int, noun string) string {
	if n != 1 {
		noun += "s"
	}
	return fmt.Sprintf("%d %s", n, noun)
}
