package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/livestore/internal/ir"
)

// LoadString compiles catalog source. filename is used in error positions.
func LoadString(src, filename string) (*ir.Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// LoadFile compiles a single catalog file.
func LoadFile(path string) (*ir.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return LoadString(string(data), path)
}

// LoadDir loads every .cue file of the package in dir as one catalog, so a
// catalog can be split across files.
func LoadDir(dir string) (*ir.Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(value)
}

// Load compiles path, which may be a catalog file or a directory.
func Load(path string) (*ir.Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	if filepath.Ext(path) != ".cue" {
		return nil, fmt.Errorf("catalog %s: expected a .cue file", path)
	}
	return LoadFile(path)
}
