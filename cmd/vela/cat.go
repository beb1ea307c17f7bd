package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/vela-wasm/vela/internal/wasm"
	"github.com/vela-wasm/vela/internal/wasm/binary"
)

func newCatCmd(fs afero.Fs) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "cat <a.wasm> <b.wasm>...",
		Short: "Concatenate the sections of one or more modules into a single module",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(fs, args, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "a.out.wasm", "path to write the concatenated module")
	return cmd
}

// runCat concatenates every named module's sections, in argument order, and
// writes the result under output. The merged module keeps the highest
// version header among its inputs.
func runCat(fs afero.Fs, paths []string, output string) error {
	var merged *wasm.Module
	for _, p := range paths {
		b, err := afero.ReadFile(fs, p)
		if err != nil {
			return errors.Wrapf(err, "reading %s", p)
		}
		m, err := binary.DecodeModule(b)
		if err != nil {
			return errors.Wrapf(err, "decoding %s", p)
		}
		if merged == nil {
			merged = m
			continue
		}
		merged.Sections = append(merged.Sections, m.Sections...)
		if m.Version > merged.Version {
			merged.Version = m.Version
		}
	}
	return afero.WriteFile(fs, output, binary.EncodeModule(merged), 0o644)
}
