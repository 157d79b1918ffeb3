// Package packageindex models the external, read-only catalogue of
// packages a program can import: their functions (with parameter lists,
// return types, and optional call patterns for Bakery) and their exported
// types. A real deployment would fetch this from the platform's registry;
// here it's loaded from YAML or built in memory for tests.
package packageindex

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind names the runtime a package's functions execute under.
type Kind string

const (
	KindECU Kind = "ecu"
	KindOAS Kind = "oas"
	KindDSL Kind = "dsl"
	KindCWL Kind = "cwl"
)

// CallPattern is the optional Bakery notation for a function: a literal
// prefix, an infix fragment inserted between each pair of arguments, and a
// literal postfix. A function with no CallPattern falls back to its bare
// name as the pattern prefix.
type CallPattern struct {
	Prefix  string   `yaml:"prefix,omitempty"`
	Infix   []string `yaml:"infix,omitempty"`
	Postfix string   `yaml:"postfix,omitempty"`
}

// Parameter describes one formal argument of a package function.
type Parameter struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Optional bool   `yaml:"optional,omitempty"`
	// Secret marks an implicit argument (e.g. a credential) supplied by the
	// runtime rather than by the caller; the resolver skips these when
	// building a function's pattern.
	Secret bool `yaml:"secret,omitempty"`
}

// Function describes one callable exported by a package.
type Function struct {
	Parameters []Parameter  `yaml:"parameters,omitempty"`
	ReturnType string       `yaml:"return_type"`
	Pattern    *CallPattern `yaml:"pattern,omitempty"`
}

// Property describes one named field of an exported type.
type Property struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Optional bool   `yaml:"optional,omitempty"`
}

// Type describes one struct-shaped type a package exports for use with
// `new Class { ... }` instance creation.
type Type struct {
	Properties []Property `yaml:"properties,omitempty"`
}

// Package is one entry of the index: a versioned, kinded bundle of
// functions and types.
type Package struct {
	Version   string              `yaml:"version"`
	Kind      Kind                `yaml:"kind"`
	Detached  bool                `yaml:"detached,omitempty"`
	Functions map[string]Function `yaml:"functions,omitempty"`
	Types     map[string]Type     `yaml:"types,omitempty"`
}

// Index is the full catalogue, keyed by package name.
type Index struct {
	Packages map[string]Package `yaml:"packages"`
}

// NewIndex returns an empty Index ready for WithPackage chaining, used by
// tests that don't want a YAML fixture on disk.
func NewIndex() *Index {
	return &Index{Packages: map[string]Package{}}
}

// WithPackage registers pkg under name and returns the Index, to allow
// chained construction.
func (idx *Index) WithPackage(name string, pkg Package) *Index {
	idx.Packages[name] = pkg
	return idx
}

// LoadIndex reads and parses a YAML package index from path.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("packageindex: read %s: %w", path, err)
	}
	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("packageindex: parse %s: %w", path, err)
	}
	if idx.Packages == nil {
		idx.Packages = map[string]Package{}
	}
	return &idx, nil
}

// Lookup finds a package by name, reporting whether it exists.
func (idx *Index) Lookup(name string) (Package, bool) {
	pkg, ok := idx.Packages[name]
	return pkg, ok
}
