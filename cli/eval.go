package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/expression"
	"github.com/petal-labs/eventsheet/registry"
)

// NewEvalCmd creates the "eval" subcommand.
func NewEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate one expression against an ad hoc scene",
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	}

	cmd.Flags().StringArray("var", nil, "Set a scene variable, name=value (repeatable)")
	cmd.Flags().StringArray("global", nil, "Set a global variable, name=value (repeatable)")
	cmd.Flags().StringArray("object", nil, "Create an instance, name[:x,y] (repeatable)")
	cmd.Flags().Uint64("seed", 0, "Seed for Random (default: random)")
	cmd.Flags().Bool("text", false, "Evaluate as a text parameter (CAL\"..\" and TXT\"..\" substitution)")
	cmd.Flags().Bool("explain", false, "Print the preprocessed steps and formula")

	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	s := settingsFrom(cmd)
	out := cmd.OutOrStdout()

	opts := []core.SceneOption{core.WithLogger(s.logger)}
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		opts = append(opts, core.WithSeed(seed))
	}
	scene := core.NewScene("eval", opts...)

	vars, _ := cmd.Flags().GetStringArray("var")
	if err := assignVariables(scene.Variables, vars); err != nil {
		return exitError(exitInputParse, "invalid --var: %v", err)
	}
	globals, _ := cmd.Flags().GetStringArray("global")
	if err := assignVariables(scene.Globals, globals); err != nil {
		return exitError(exitInputParse, "invalid --global: %v", err)
	}
	objects, _ := cmd.Flags().GetStringArray("object")
	for _, spec := range objects {
		name, x, y, err := parseObjectFlag(spec)
		if err != nil {
			return exitError(exitInputParse, "invalid --object: %v", err)
		}
		scene.Objects.Create(name, x, y)
	}

	ev := expression.NewEvaluator(scene, registry.NewWithBuiltins())
	e := expression.New(args[0])
	ev.Preprocess(e)

	if explain, _ := cmd.Flags().GetBool("explain"); explain {
		printExplain(out, e)
	}
	if text, _ := cmd.Flags().GetBool("text"); text {
		fmt.Fprintln(out, ev.EvalTxt(nil, e, core.NoObject, core.NoObject))
	} else {
		fmt.Fprintln(out, expression.FormatNumber(ev.EvalExp(nil, e, core.NoObject, core.NoObject)))
	}

	for _, d := range scene.Diagnostics.Entries() {
		fmt.Fprintln(cmd.ErrOrStderr(), d.String())
	}
	return nil
}

func printExplain(w io.Writer, e *expression.Expression) {
	fmt.Fprintf(w, "source:  %s\n", e.PlainString())
	for i, step := range e.Steps() {
		fmt.Fprintf(w, "x%d:      %s\n", i, step)
	}
	fmt.Fprintf(w, "formula: %s\n", e.Formula().Source())
	fmt.Fprintf(w, "parsed:  %s\n", e.Formula())
}

// assignVariables applies name=value pairs. Values that parse as numbers
// set the number; anything else sets the text.
func assignVariables(vars *core.Variables, pairs []string) error {
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("expected name=value, got %q", pair)
		}
		v := vars.FindOrCreate(name)
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			v.SetValue(f)
		} else {
			v.SetText(value)
		}
	}
	return nil
}

func parseObjectFlag(spec string) (name string, x, y float64, err error) {
	name, pos, hasPos := strings.Cut(spec, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, 0, fmt.Errorf("missing object name in %q", spec)
	}
	if !hasPos {
		return name, 0, 0, nil
	}
	xs, ys, ok := strings.Cut(pos, ",")
	if !ok {
		return "", 0, 0, fmt.Errorf("expected name:x,y, got %q", spec)
	}
	if x, err = strconv.ParseFloat(strings.TrimSpace(xs), 64); err != nil {
		return "", 0, 0, fmt.Errorf("bad x in %q: %w", spec, err)
	}
	if y, err = strconv.ParseFloat(strings.TrimSpace(ys), 64); err != nil {
		return "", 0, 0, fmt.Errorf("bad y in %q: %w", spec, err)
	}
	return name, x, y, nil
}
