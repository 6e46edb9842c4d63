package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `writers: 2
readers: 1
base_seed: 42
store:
    backend: memory
generator:
    key_len:
        min: 4
        max: 5
    value_len:
        min: 4
        max: 5
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse("test.yaml", []byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Writers)
	assert.Equal(t, 1, cfg.Readers)
	require.NotNil(t, cfg.BaseSeed)
	assert.Equal(t, uint64(42), *cfg.BaseSeed)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 4, cfg.Generator.KeyLen.Min)
	assert.Equal(t, 5, cfg.Generator.KeyLen.Max)
}

func TestParse_SchemaRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero writers", `writers: 0
readers: 1
store: {backend: memory}
generator: {key_len: {min: 4, max: 5}, value_len: {min: 4, max: 5}}
`},
		{"unknown backend", `writers: 1
readers: 1
store: {backend: postgres}
generator: {key_len: {min: 4, max: 5}, value_len: {min: 4, max: 5}}
`},
		{"missing generator", `writers: 1
readers: 1
store: {backend: memory}
`},
		{"unknown field", `writers: 1
readers: 1
wirters: 3
store: {backend: memory}
generator: {key_len: {min: 4, max: 5}, value_len: {min: 4, max: 5}}
`},
		{"negative base seed", `writers: 1
readers: 1
base_seed: -5
store: {backend: memory}
generator: {key_len: {min: 4, max: 5}, value_len: {min: 4, max: 5}}
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("test.yaml", []byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_CrossFieldRules(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		field string
	}{
		{"empty key interval", `writers: 1
readers: 1
store: {backend: memory}
generator: {key_len: {min: 5, max: 5}, value_len: {min: 4, max: 5}}
`, "generator.key_len"},
		{"inverted value interval", `writers: 1
readers: 1
store: {backend: memory}
generator: {key_len: {min: 4, max: 5}, value_len: {min: 9, max: 5}}
`, "generator.value_len"},
		{"sqlite without path", `writers: 1
readers: 1
store: {backend: sqlite}
generator: {key_len: {min: 4, max: 5}, value_len: {min: 4, max: 5}}
`, "store.path"},
		{"http without addr", `writers: 1
readers: 1
store: {backend: http}
generator: {key_len: {min: 4, max: 5}, value_len: {min: 4, max: 5}}
`, "store.addr"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("test.yaml", []byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	assert.Empty(t, Default().Validate())

	data, err := Default().Encode()
	require.NoError(t, err)
	_, err = Parse("default.yaml", data)
	assert.NoError(t, err, "the dumped default must load back cleanly")
}

func TestEncode_DefaultGolden(t *testing.T) {
	data, err := Default().Encode()
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "default_config", data)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Writers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestResolveBaseSeed(t *testing.T) {
	seed := uint64(7)
	cfg := Config{BaseSeed: &seed}
	got, err := cfg.ResolveBaseSeed()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)

	// Without a configured seed a random one is drawn; two draws agreeing
	// twice in a row would be astronomically unlikely.
	cfg.BaseSeed = nil
	a, err := cfg.ResolveBaseSeed()
	require.NoError(t, err)
	b, err := cfg.ResolveBaseSeed()
	require.NoError(t, err)
	if a == b {
		c, err := cfg.ResolveBaseSeed()
		require.NoError(t, err)
		assert.NotEqual(t, a, c)
	}
}
