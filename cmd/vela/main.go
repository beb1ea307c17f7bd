// Command vela is a thin CLI over the vela module: cat, dump, opt, and
// interp wrap the library's codec, dump, optimizer, and interpreter
// respectively. The library does the work; this package only parses flags
// and formats output.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(afero.NewOsFs(), os.Stdout, os.Stderr).Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}

func newRootCmd(fs afero.Fs, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "vela",
		Short:         "A WebAssembly codec, assembler, and interpreter toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(
		newCatCmd(fs),
		newDumpCmd(fs),
		newOptCmd(fs),
		newInterpCmd(fs),
	)
	return root
}
