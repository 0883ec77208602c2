// Package config holds the read-only parameter table consulted by the schema
// engine: catalog limits, conflict auto-resolution, lock wait budget and the
// B-tree fan-out used by the storage layer.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"classdb/pkg/logging"
)

const (
	DefaultMaxRepresentations = 1024
	DefaultMaxAttributes      = 1600
	DefaultLockTimeout        = 30 * time.Second
	DefaultBTreeDegree        = 32
)

// Parameters is the engine parameter table.
type Parameters struct {
	// MaxRepresentations bounds how many record layouts a class may accumulate.
	MaxRepresentations int `yaml:"max_representations"`

	// MaxAttributes bounds the number of attributes of one flattened class.
	MaxAttributes int `yaml:"max_attributes"`

	// AutoResolve turns an unresolved same-domain name conflict between two
	// unrelated superclasses into an implicit resolution in favour of the
	// first superclass instead of an error.
	AutoResolve bool `yaml:"auto_resolve"`

	// LockTimeout bounds how long a schema change waits for one class lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// BTreeDegree is the degree of the in-memory B-trees backing constraints.
	BTreeDegree int `yaml:"btree_degree"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns the parameter table used when no configuration file is given.
func Default() Parameters {
	return Parameters{
		MaxRepresentations: DefaultMaxRepresentations,
		MaxAttributes:      DefaultMaxAttributes,
		LockTimeout:        DefaultLockTimeout,
		BTreeDegree:        DefaultBTreeDegree,
		Logging: logging.Config{
			Level:  logging.LevelInfo,
			Format: "text",
		},
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Parameters, error) {
	params := Default()
	if err := yaml.Unmarshal(data, &params); err != nil {
		return Parameters{}, fmt.Errorf("failed to parse parameters: %w", err)
	}
	if err := params.Validate(); err != nil {
		return Parameters{}, err
	}
	return params, nil
}

// Load reads and parses a YAML parameter file.
func Load(path string) (Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("failed to read parameters %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks the parameter ranges.
func (p Parameters) Validate() error {
	if p.MaxRepresentations <= 0 {
		return fmt.Errorf("max_representations must be positive, got %d", p.MaxRepresentations)
	}
	if p.MaxAttributes <= 0 {
		return fmt.Errorf("max_attributes must be positive, got %d", p.MaxAttributes)
	}
	if p.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must not be negative, got %s", p.LockTimeout)
	}
	if p.BTreeDegree < 2 {
		return fmt.Errorf("btree_degree must be at least 2, got %d", p.BTreeDegree)
	}
	return nil
}
