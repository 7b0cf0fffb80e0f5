// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package loader transitively resolves `import` declarations into a single
// merged compilation unit, deduplicating by absolute file path.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set"

	"github.com/xlatticelabs/xlvm/lang/ast"
	"github.com/xlatticelabs/xlvm/lang/parser"
)

// IoError wraps a file-system failure encountered while loading a source
// file. It is always fatal.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("loader: %s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// Loader performs the depth-first import traversal described in §4.3: each
// file is parsed at most once, keyed by its absolute canonical path.
// Imported units' globals and functions precede the importing file's so
// earlier-loaded definitions are visible to later ones.
type Loader struct {
	visited mapset.Set
}

// New returns a Loader with an empty visited-set.
func New() *Loader {
	return &Loader{visited: mapset.NewSet()}
}

// Load resolves the transitive import graph rooted at entryPath and returns
// the merged (globals, functions) in post-order (imports before importer).
func Load(entryPath string) (*ast.Unit, error) {
	return New().Load(entryPath)
}

// Load is the instance form of the package-level Load, reusing the visited
// set across repeated calls (useful for incremental reloads).
func (l *Loader) Load(entryPath string) (*ast.Unit, error) {
	merged := &ast.Unit{}
	if err := l.load(entryPath, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (l *Loader) load(path string, merged *ast.Unit) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return &IoError{Path: path, Err: err}
	}
	if l.visited.Contains(absPath) {
		return nil
	}
	l.visited.Add(absPath)

	src, err := os.ReadFile(path)
	if err != nil {
		return &IoError{Path: path, Err: err}
	}

	p, err := parser.New(path, string(src))
	if err != nil {
		return err
	}
	unit, err := p.Parse()
	if err != nil {
		return err
	}

	for _, imp := range unit.Imports {
		if imp.Path == "" {
			continue // empty import target: silently ignored, per §4.3
		}
		if err := l.load(imp.Path, merged); err != nil {
			return err
		}
	}

	merged.Globals = append(merged.Globals, unit.Globals...)
	merged.Funcs = append(merged.Funcs, unit.Funcs...)
	return nil
}
