package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(tb testing.TB, dir, name, content string) string {
	tb.Helper()

	pa := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(pa, []byte(content), 0o600))

	return pa
}

func TestRun_stdout(t *testing.T) {
	dir := t.TempDir()

	settingsPath := writeFile(t, dir, "settings.yaml",
		"motd: hello\naws:\n  region: eu-west-1\n",
	)
	motd := writeFile(t, dir, "motd.tpl",
		"required-extensions:\n  motd:\n  std:\n+++\n{{ upper(settings.motd) }}\n",
	)
	ecr := writeFile(t, dir, "ecr.tpl",
		"required-extensions:\n  aws:\n+++\n{{ ecr_prefix(settings.aws.region) }}\n",
	)

	var stdout, stderr bytes.Buffer

	err := run([]string{
		"--settings-file", settingsPath,
		"-t", motd, "-t", ecr,
		"--log-level", "error",
	}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t,
		"HELLO\n328549459982.dkr.ecr.eu-west-1.amazonaws.com\n",
		stdout.String(),
	)
}

func TestRun_output_dir_and_config_file(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	settingsPath := writeFile(t, dir, "settings.json", `{"motd": "hi"}`)
	tpl := writeFile(t, dir, "motd.tmpl",
		"required-extensions:\n  motd:\n+++\n{{ settings.motd }}",
	)
	cfgPath := writeFile(t, dir, "confgen.yaml",
		"settings-file: "+settingsPath+"\n"+
			"output-dir: "+outDir+"\n"+
			"backend: pongo2\n"+
			"log-level: error\n",
	)

	var stdout, stderr bytes.Buffer

	// The flag wins over the file.
	err := run([]string{
		"--config", cfgPath, "--backend", "fast", tpl,
	}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, stdout.String())

	got, err := os.ReadFile(filepath.Join(outDir, "motd")) //nolint:gosec // test file
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestRun_usage_errors(t *testing.T) {
	dir := t.TempDir()
	tpl := writeFile(t, dir, "x.tpl", "x")

	tests := [][]string{
		{"-t", tpl},
		{"--settings-file", "a.json", "--settings-dir", "d", "-t", tpl},
		{"--settings-file", "a.json"},
		{"--settings-file", "a.json", "-t", tpl, "--fetch-retries", "0"},
		{"--settings-file", "a.json", "-t", tpl, "--log-format", "xml"},
		{"--bogus"},
	}

	for _, args := range tests {
		var stdout, stderr bytes.Buffer

		err := run(args, &stdout, &stderr)
		require.ErrorIs(t, err, errUsage, args)
	}
}

func TestRun_render_failure(t *testing.T) {
	dir := t.TempDir()

	settingsPath := writeFile(t, dir, "settings.json", `{}`)
	tpl := writeFile(t, dir, "bad.tpl",
		"required-extensions:\n  nope:\n+++\nx",
	)

	var stdout, stderr bytes.Buffer

	err := run([]string{
		"--settings-file", settingsPath, "-t", tpl, "--log-level", "error",
	}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
	assert.Empty(t, stdout.String())
}
