// Package baseruntime provides a minimal "baseruntime" host module exposing
// standard I/O to guest modules: just enough for a guest to write bytes
// from its own memory to stdout/stderr, or read bytes from stdin into its
// own memory, without the full WASI ABI.
package baseruntime

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/vela-wasm/vela"
	"github.com/vela-wasm/vela/api"
)

// ModuleName is the import module name scripts reference.
const ModuleName = "baseruntime"

const (
	fdStdin  = int32(0)
	fdStdout = int32(1)
	fdStderr = int32(2)
)

// config customizes the streams baseruntime's functions read from and
// write to. The zero value uses the process's own stdin/stdout/stderr.
type config struct {
	stdin          io.Reader
	stdout, stderr io.Writer
}

// Option customizes Instantiate.
type Option func(*config)

// WithStdin overrides the stream fd 0 reads from.
func WithStdin(r io.Reader) Option { return func(c *config) { c.stdin = r } }

// WithStdout overrides the stream fd 1 writes to.
func WithStdout(w io.Writer) Option { return func(c *config) { c.stdout = w } }

// WithStderr overrides the stream fd 2 writes to.
func WithStderr(w io.Writer) Option { return func(c *config) { c.stderr = w } }

// Instantiate registers the baseruntime host module in r's namespace under
// ModuleName.
func Instantiate(ctx context.Context, r *vela.Runtime, opts ...Option) (api.Module, error) {
	cfg := &config{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, o := range opts {
		o(cfg)
	}
	stdin := bufio.NewReader(cfg.stdin)

	b := r.NewHostModuleBuilder(ModuleName)

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, ptr, length int32) int32 {
			var w io.Writer
			switch fd {
			case fdStdout:
				w = cfg.stdout
			case fdStderr:
				w = cfg.stderr
			default:
				return -1
			}
			data, ok := mod.Memory().Read(uint32(ptr), uint32(length))
			if !ok {
				return -1
			}
			n, err := w.Write(data)
			if err != nil {
				return -1
			}
			return int32(n)
		}).
		WithName("write").
		Export("write")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, ptr, length int32) int32 {
			if fd != fdStdin {
				return -1
			}
			buf := make([]byte, length)
			n, err := io.ReadFull(stdin, buf)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
				return -1
			}
			if n > 0 && !mod.Memory().Write(uint32(ptr), buf[:n]) {
				return -1
			}
			return int32(n)
		}).
		WithName("read").
		Export("read")

	return b.Instantiate(ctx)
}
