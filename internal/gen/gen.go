// Package gen produces deterministic pseudo-random streams of key-value
// operations.
//
// Every Generator is a pure function of (seed, writer identity, Config):
// two Generators constructed with identical parameters emit byte-identical
// operation sequences, and Reset rewinds a stream to its first draw. This
// property is what lets a verifier replay a writer's workload without ever
// touching the writer's own generator.
package gen

import (
	"encoding/binary"

	"golang.org/x/exp/rand"
)

// alphabet is the 62-symbol set generated key and value bytes are drawn from.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// WriterIDLen is the width of the writer-identity suffix appended to every
// generated key.
const WriterIDLen = 8

// Range is a half-open [Min, Max) interval of byte lengths.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Contains reports whether n falls inside the interval.
func (r Range) Contains(n int) bool {
	return n >= r.Min && n < r.Max
}

// Config bounds the lengths of generated keys and values. Config is shared
// by value and never mutated after construction.
type Config struct {
	KeyLen   Range `yaml:"key_len"`
	ValueLen Range `yaml:"value_len"`
}

// OpKind discriminates the operation variants.
type OpKind int

const (
	// OpPut writes a generated value under a generated key.
	OpPut OpKind = iota
	// OpDelete removes a generated key.
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is a single generated store operation. Value is nil for OpDelete.
type Operation struct {
	Kind  OpKind
	Key   []byte
	Value []byte
}

// Generator emits an infinite, restartable operation stream.
//
// The PRNG is PCG (golang.org/x/exp/rand), a named, versioned algorithm that
// produces the same sequence for the same seed on every platform. Wall-clock
// or hardware entropy never feeds a Generator.
//
// Not safe for concurrent use; a Generator has exactly one owner.
type Generator struct {
	seed     uint64
	writerID uint64
	cfg      Config
	rng      *rand.Rand
}

// New creates a Generator positioned at draw 0.
func New(seed, writerID uint64, cfg Config) *Generator {
	return &Generator{
		seed:     seed,
		writerID: writerID,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the stream was constructed with.
func (g *Generator) Seed() uint64 { return g.seed }

// WriterID returns the identity embedded in every generated key.
func (g *Generator) WriterID() uint64 { return g.writerID }

// Config returns the length configuration.
func (g *Generator) Config() Config { return g.cfg }

// Reset rewinds the stream to draw 0. The next NextOp call repeats the
// first operation the Generator ever produced.
func (g *Generator) Reset() {
	g.rng = rand.New(rand.NewSource(g.seed))
}

// NextOp advances the stream by one draw and returns the operation.
// Put and Delete are drawn with equal probability.
func (g *Generator) NextOp() Operation {
	if g.rng.Intn(2) == 0 {
		return Operation{
			Kind:  OpPut,
			Key:   g.nextKey(),
			Value: g.nextBytes(g.cfg.ValueLen),
		}
	}
	return Operation{Kind: OpDelete, Key: g.nextKey()}
}

// nextKey draws alphanumeric bytes of a length inside the key interval and
// appends the writer identity as a fixed-width little-endian suffix. The
// suffix partitions the key space: distinct writers can never produce the
// same key.
func (g *Generator) nextKey() []byte {
	key := g.nextBytes(g.cfg.KeyLen)
	var id [WriterIDLen]byte
	binary.LittleEndian.PutUint64(id[:], g.writerID)
	return append(key, id[:]...)
}

func (g *Generator) nextBytes(r Range) []byte {
	n := r.Min + g.rng.Intn(r.Max-r.Min)
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[g.rng.Intn(len(alphabet))]
	}
	return buf
}
