// Package config loads, validates and dumps the kvchaos run configuration.
//
// Configuration travels as YAML. Shape and field constraints are enforced
// by an embedded CUE schema; rules the schema cannot express (interval
// ordering, backend-specific fields) are checked in Go afterwards.
package config

import (
	"crypto/rand"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/kvchaos/internal/gen"
)

//go:embed schema.cue
var schemaCUE string

// Backend names accepted by StoreConfig.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendHTTP   = "http"
)

// StoreConfig selects and parameterizes the store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

// Config is the full run configuration.
type Config struct {
	Writers   int         `yaml:"writers"`
	Readers   int         `yaml:"readers"`
	BaseSeed  *uint64     `yaml:"base_seed,omitempty"`
	Store     StoreConfig `yaml:"store"`
	Generator gen.Config  `yaml:"generator"`
}

// Default returns the configuration `kvchaos init` dumps: a small run
// against the in-memory backend.
func Default() Config {
	return Config{
		Writers: 4,
		Readers: 2,
		Store:   StoreConfig{Backend: BackendMemory},
		Generator: gen.Config{
			KeyLen:   gen.Range{Min: 16, Max: 32},
			ValueLen: gen.Range{Min: 512, Max: 2048},
		},
	}
}

// Encode serializes the configuration as YAML.
func (c Config) Encode() ([]byte, error) {
	return yaml.Marshal(c)
}

// ResolveBaseSeed returns the configured base seed, or draws a fresh one
// from the OS entropy source when none is set. Only the base seed is
// non-deterministic; everything downstream derives from it.
func (c Config) ResolveBaseSeed() (uint64, error) {
	if c.BaseSeed != nil {
		return *c.BaseSeed, nil
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("draw base seed: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ValidationError reports a configuration rule the CUE schema cannot
// express.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks cross-field rules. The schema has already constrained
// individual fields by the time this runs.
func (c Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Generator.KeyLen.Min >= c.Generator.KeyLen.Max {
		errs = append(errs, ValidationError{
			Field:   "generator.key_len",
			Message: fmt.Sprintf("half-open interval requires min < max, got [%d, %d)", c.Generator.KeyLen.Min, c.Generator.KeyLen.Max),
		})
	}
	if c.Generator.ValueLen.Min >= c.Generator.ValueLen.Max {
		errs = append(errs, ValidationError{
			Field:   "generator.value_len",
			Message: fmt.Sprintf("half-open interval requires min < max, got [%d, %d)", c.Generator.ValueLen.Min, c.Generator.ValueLen.Max),
		})
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, ValidationError{Field: "store.path", Message: "required for the sqlite backend"})
		}
	case BackendHTTP:
		if c.Store.Addr == "" {
			errs = append(errs, ValidationError{Field: "store.addr", Message: "required for the http backend"})
		}
	}
	return errs
}

// Load reads, schema-checks, decodes and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse schema-checks, decodes and validates raw configuration bytes.
// The filename is used only in diagnostics.
func Parse(filename string, data []byte) (Config, error) {
	if err := validateSchema(filename, data); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, errors.Join(joined...))
	}
	return cfg, nil
}

// validateSchema unifies the YAML document with the embedded #Config
// definition. The definition is closed, so unknown fields fail here.
func validateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup config schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config %s does not satisfy schema:\n%s", filename, cueerrors.Details(err, nil))
	}
	return nil
}
