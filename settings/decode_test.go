package settings_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/confgen/settings"
)

// writeTemp creates a file with content and returns its
// path.
func writeTemp(
	tb testing.TB,
	dir string,
	name string,
	content []byte,
) string {
	tb.Helper()

	pa := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(pa, content, 0o600))

	return pa
}

func TestDecode_formats(t *testing.T) {
	t.Parallel()

	cborData, err := cbor.Marshal(map[string]any{
		"motd": "hello",
		"port": 22,
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		format settings.Format
		data   []byte
	}{
		{
			name:   "json",
			format: settings.FormatJSON,
			data:   []byte(`{"motd": "hello", "port": 22}`),
		},
		{
			name:   "jsonc",
			format: settings.FormatJSONC,
			data: []byte(`{
				// message of the day
				"motd": "hello",
				"port": 22, /* trailing comma allowed */
			}`),
		},
		{
			name:   "yaml",
			format: settings.FormatYAML,
			data:   []byte("motd: hello\nport: 22\n"),
		},
		{
			name:   "cbor",
			format: settings.FormatCBOR,
			data:   cborData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := settings.Decode(tt.data, tt.format)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{
				"motd": "hello",
				"port": int64(22),
			}, doc.Map())
		})
	}
}

func TestDecode_yaml_stream_merges_documents(t *testing.T) {
	t.Parallel()

	doc, err := settings.Decode([]byte(
		"kubernetes:\n  cluster-name: dev\n  max-pods: 10\n"+
			"---\n"+
			"kubernetes:\n  cluster-name: prod\n",
	), settings.FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"kubernetes": map[string]any{
			"cluster-name": "prod",
			"max-pods":     int64(10),
		},
	}, doc.Map())
}

func TestDecode_errors(t *testing.T) {
	t.Parallel()

	_, err := settings.Decode([]byte(`[1, 2]`), settings.FormatJSON)
	require.Error(t, err)
	assert.ErrorContains(t, err, "decoding settings")

	_, err = settings.Decode([]byte(`{}`), settings.Format("toml"))
	require.ErrorIs(t, err, settings.ErrUnknownFormat)
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path       string
		want       settings.Format
		compressed bool
	}{
		{"a/model.json", settings.FormatJSON, false},
		{"model.yml", settings.FormatYAML, false},
		{"model.YAML", settings.FormatYAML, false},
		{"model.jsonc", settings.FormatJSONC, false},
		{"model.cbor.zst", settings.FormatCBOR, true},
	}

	for _, tt := range tests {
		got, compressed, err := settings.FormatFromPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
		assert.Equal(t, tt.compressed, compressed, tt.path)
	}

	_, _, err := settings.FormatFromPath("model.txt")
	require.ErrorIs(t, err, settings.ErrUnknownFormat)
}

func TestLoadFile_zstd(t *testing.T) {
	t.Parallel()

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)

	compressed := enc.EncodeAll([]byte(`{"motd": "zipped"}`), nil)
	require.NoError(t, enc.Close())

	pa := writeTemp(t, t.TempDir(), "model.json.zst", compressed)

	doc, err := settings.LoadFile(pa)
	require.NoError(t, err)

	val, ok := doc.Get("motd")
	require.True(t, ok)
	assert.Equal(t, "zipped", val)
}

func TestLoadFile_missing(t *testing.T) {
	t.Parallel()

	_, err := settings.LoadFile("/nonexistent/model.json")
	require.Error(t, err)
	assert.ErrorContains(t, err, "loading settings file")
}

func TestLoadDir_layers_in_filename_order(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeTemp(t, dir, "10-base.yaml", []byte(
		"motd: base\nntp:\n  servers: [a]\n",
	))
	writeTemp(t, dir, "20-override.json", []byte(
		`{"motd": "override"}`,
	))
	writeTemp(t, dir, "README.md", []byte("ignored"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))

	doc, err := settings.LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"motd": "override",
		"ntp":  map[string]any{"servers": []any{"a"}},
	}, doc.Map())
}

func TestDecodeNamed(t *testing.T) {
	t.Parallel()

	doc, err := settings.DecodeNamed(
		"settings.yaml", []byte("motd: hello\n"),
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"motd": "hello"}, doc.Map())

	_, err = settings.DecodeNamed("settings.ini", []byte("motd=hello"))
	require.ErrorIs(t, err, settings.ErrUnknownFormat)
	assert.ErrorContains(t, err, "settings.ini")

	_, err = settings.DecodeNamed("settings.json.zst", []byte("not zstd"))
	require.Error(t, err)
}
