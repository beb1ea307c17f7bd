package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/vela-wasm/vela/internal/dump"
	"github.com/vela-wasm/vela/internal/wasm/binary"
)

func newDumpCmd(fs afero.Fs) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file.wasm>",
		Short: "Print a human-readable rendering of a module's sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := afero.ReadFile(fs, args[0])
			if err != nil {
				return errors.Wrapf(err, "reading %s", args[0])
			}
			m, err := binary.DecodeModule(b)
			if err != nil {
				return errors.Wrapf(err, "decoding %s", args[0])
			}
			return dump.Fprint(cmd.OutOrStdout(), m)
		},
	}
}
