package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/vela-wasm/vela/internal/optimizer"
	"github.com/vela-wasm/vela/internal/wasm/binary"
)

func newOptCmd(fs afero.Fs) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "opt <file.wasm>",
		Short: "Apply size and speed optimizations to a module in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output
			if out == "" {
				out = args[0]
			}
			b, err := afero.ReadFile(fs, args[0])
			if err != nil {
				return errors.Wrapf(err, "reading %s", args[0])
			}
			m, err := binary.DecodeModule(b)
			if err != nil {
				return errors.Wrapf(err, "decoding %s", args[0])
			}
			optimizer.Optimize(m)
			return afero.WriteFile(fs, out, binary.EncodeModule(m), 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "path to write the optimized module (defaults to overwriting the input)")
	return cmd
}
