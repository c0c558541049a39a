package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ggoodman/optshape/coerce"
	"github.com/ggoodman/optshape/internal/docfile"
	"github.com/ggoodman/optshape/internal/watch"
)

var errMismatch = errors.New("input does not match shape")

var checkFlags struct {
	shape    string
	input    string
	strategy string
	all      bool
	strict   bool
	watch    bool
}

var checkCmd = &cobra.Command{
	Use:   "check --shape FILE --input FILE",
	Short: "Coerce an input document against a descriptor",
	Long: `Loads a descriptor (canonical form or JSON Schema) and an input document,
both JSON or YAML, and prints the coerced value or the mismatch report.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.StringVar(&checkFlags.shape, "shape", "", "descriptor file")
	f.StringVar(&checkFlags.input, "input", "", "input document")
	f.StringVar(&checkFlags.strategy, "strategy", "open", "coercion strategy: open or closed")
	f.BoolVar(&checkFlags.all, "all", false, "report every mismatch instead of the first")
	f.BoolVar(&checkFlags.strict, "strict", false, "treat unresolved bindings as mismatches")
	f.BoolVar(&checkFlags.watch, "watch", false, "re-run whenever either file changes")
	_ = checkCmd.MarkFlagRequired("shape")
	_ = checkCmd.MarkFlagRequired("input")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	strategy, err := coerce.ParseStrategy(checkFlags.strategy)
	if err != nil {
		return err
	}
	var opts []coerce.Option
	if checkFlags.all {
		opts = append(opts, coerce.WithAllMismatches())
	}
	if checkFlags.strict {
		opts = append(opts, coerce.WithStrictUnresolved())
	}
	e := coerce.New(strategy, nil, opts...)
	out := cmd.OutOrStdout()

	if !checkFlags.watch {
		return checkOnce(out, e, checkFlags.shape, checkFlags.input)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	report := func(context.Context) {
		if err := checkOnce(out, e, checkFlags.shape, checkFlags.input); err != nil && !errors.Is(err, errMismatch) {
			fmt.Fprintln(out, "error:", err)
		}
		fmt.Fprintln(out, "---")
	}
	report(ctx)
	return watch.Files(ctx, []string{checkFlags.shape, checkFlags.input}, report,
		watch.WithLogger(newLogger(cmd.ErrOrStderr(), "warn")))
}

// checkOnce prints the coerced value as indented JSON followed by any
// unresolved bindings. A mismatch is printed and reported as errMismatch.
func checkOnce(w io.Writer, e *coerce.Engine, shapePath, inputPath string) error {
	s, err := docfile.LoadShape(shapePath)
	if err != nil {
		return err
	}
	in, err := docfile.Load(inputPath)
	if err != nil {
		return err
	}
	res, err := e.Coerce(s, in)
	if err != nil {
		var d *coerce.Diagnostic
		var ds coerce.Diagnostics
		if !errors.As(err, &d) && !errors.As(err, &ds) {
			return err
		}
		fmt.Fprintln(w, coerce.RenderError(err))
		return errMismatch
	}
	b, err := json.MarshalIndent(coerce.Plain(res.Value), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	for _, u := range res.Unresolved {
		fmt.Fprintf(w, "unresolved %s at %s: bound to %s\n", u.Slot, u.Path, u.Bound)
	}
	return nil
}
