package server

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// Decompressor expands a compressed symbol-store artifact (MS cabinet
// format) into its original file.
type Decompressor interface {
	Decompress(ctx context.Context, src, dst string) error
}

// commander abstracts exec.Cmd for testing.
type commander interface {
	Run() error
}

// ExpandDecompressor shells out to a cabinet extraction tool: expand on
// Windows, cabextract elsewhere. Whichever is found on PATH first wins.
type ExpandDecompressor struct {
	execCommand func(ctx context.Context, name string, args ...string) commander
	lookPath    func(name string) (string, error)
}

// NewExpandDecompressor creates the default exec-based decompressor.
func NewExpandDecompressor() *ExpandDecompressor {
	return &ExpandDecompressor{
		execCommand: func(ctx context.Context, name string, args ...string) commander {
			return exec.CommandContext(ctx, name, args...)
		},
		lookPath: exec.LookPath,
	}
}

// Decompress expands src into dst.
func (d *ExpandDecompressor) Decompress(ctx context.Context, src, dst string) error {
	if _, err := d.lookPath("expand"); err == nil {
		return d.run(ctx, "expand", src, dst)
	}

	if _, err := d.lookPath("cabextract"); err == nil {
		// cabextract writes the member under its original name, which is
		// dst's base name.
		return d.run(ctx, "cabextract", "-q", "-d", filepath.Dir(dst), src)
	}

	return fmt.Errorf("no cabinet extraction tool (expand, cabextract) on PATH")
}

func (d *ExpandDecompressor) run(ctx context.Context, name string, args ...string) error {
	if err := d.execCommand(ctx, name, args...).Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}
