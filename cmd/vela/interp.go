package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/vela-wasm/vela"
	"github.com/vela-wasm/vela/api"
	"github.com/vela-wasm/vela/imports/baseruntime"
	"github.com/vela-wasm/vela/imports/spectest"
)

func newInterpCmd(fs afero.Fs) *cobra.Command {
	var importer, invoke string
	cmd := &cobra.Command{
		Use:   "interp <file.wasm> [-- arg...]",
		Short: "Instantiate a module and optionally invoke one of its exports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterp(cmd.Context(), fs, args[0], importer, invoke, args[1:], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&importer, "importer", "", `host module to make available for import: "spectest" or "base-runtime"`)
	cmd.Flags().StringVar(&invoke, "invoke", "", "exported function name to call; trailing positional args are its arguments")
	return cmd
}

func runInterp(ctx context.Context, fs afero.Fs, path, importer, invoke string, rawArgs []string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}

	r := vela.NewRuntime(ctx)
	defer r.Close(ctx)

	switch importer {
	case "":
	case "spectest":
		if _, err := spectest.Instantiate(ctx, r, spectest.WithWriter(stdout)); err != nil {
			return errors.Wrap(err, "instantiating spectest importer")
		}
	case "base-runtime":
		if _, err := baseruntime.Instantiate(ctx, r, baseruntime.WithStdout(stdout), baseruntime.WithStderr(stderr)); err != nil {
			return errors.Wrap(err, "instantiating base-runtime importer")
		}
	default:
		return errors.Errorf("unknown importer %q", importer)
	}

	compiled, err := r.CompileModule(ctx, b)
	if err != nil {
		return errors.Wrapf(err, "compiling %s", path)
	}

	mod, err := r.InstantiateModule(ctx, compiled, vela.NewModuleConfig())
	if err != nil {
		return errors.Wrapf(err, "instantiating %s", path)
	}

	if invoke == "" {
		return nil
	}

	fn := mod.ExportedFunction(invoke)
	if fn == nil {
		return errors.Errorf("no exported function %q", invoke)
	}

	stack := make([]uint64, len(rawArgs))
	for i, a := range rawArgs {
		v, err := parseArg(a)
		if err != nil {
			return errors.Wrapf(err, "argument %d", i)
		}
		stack[i] = v
	}

	results, err := fn.Call(ctx, stack...)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return errOutput
	}

	strs := make([]string, len(results))
	for i, v := range results {
		strs[i] = strconv.FormatUint(v, 10)
	}
	fmt.Fprintln(stdout, strings.Join(strs, " "))
	return nil
}

// errOutput signals runInterp already reported its failure to stderr itself
// (a guest trap), so the caller shouldn't print the error a second time.
var errOutput = errors.New("")

// parseArg decodes a single --invoke argument into an operand-stack slot.
// An integer literal suffixed with "l" encodes an i64, one suffixed with
// "f" encodes an f32; anything else parses as an i32 if it fits, else a
// u32 if it fits, else an f64.
func parseArg(a string) (uint64, error) {
	switch {
	case strings.HasSuffix(a, "l"):
		n, err := strconv.ParseInt(strings.TrimSuffix(a, "l"), 10, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeI64(n), nil
	case strings.HasSuffix(a, "f"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(a, "f"), 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(n)), nil
	}
	if n, err := strconv.ParseInt(a, 10, 32); err == nil {
		return api.EncodeI32(int32(n)), nil
	}
	if n, err := strconv.ParseUint(a, 10, 32); err == nil {
		return api.EncodeU32(uint32(n)), nil
	}
	n, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, errors.Errorf("cannot parse %q as an i32, u32, or f64", a)
	}
	return api.EncodeF64(n), nil
}
