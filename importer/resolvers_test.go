package importer_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/byte4ever/confgen/importer"
)

func writeFile(tb testing.TB, dir, name, content string) string {
	tb.Helper()

	pa := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(pa, []byte(content), 0o600))

	return pa
}

func TestFileSettingsResolver_file(t *testing.T) {
	t.Parallel()

	pa := writeFile(t, t.TempDir(), "settings.yaml",
		"settings:\n  motd: hello\n  aws:\n    region: eu-west-1\n",
	)

	got, err := importer.NewFileSettingsResolver(pa).FetchSettings(
		context.Background(), slices.Values(reqs("aws", "ntp")),
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"settings": map[string]any{
			"aws": map[string]any{"region": "eu-west-1"},
		},
	}, got.Map())
}

func TestFileSettingsResolver_reads_each_fetch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "00-defaults.json", `{"motd": "default"}`)

	res := importer.NewFileSettingsResolver(dir)
	ctx := context.Background()

	got, err := res.FetchSettings(ctx, slices.Values(reqs("motd")))
	require.NoError(t, err)
	assert.Equal(t, `{"settings":{"motd":"default"}}`, got.String())

	writeFile(t, dir, "10-override.json", `{"motd": "override"}`)

	got, err = res.FetchSettings(ctx, slices.Values(reqs("motd")))
	require.NoError(t, err)
	assert.Equal(t, `{"settings":{"motd":"override"}}`, got.String())
}

func TestFileSettingsResolver_errors(t *testing.T) {
	t.Parallel()

	_, err := importer.NewFileSettingsResolver("/nonexistent").FetchSettings(
		context.Background(), slices.Values(reqs("motd")),
	)
	require.ErrorIs(t, err, os.ErrNotExist)

	pa := writeFile(t, t.TempDir(), "broken.json", `{"motd":`)

	_, err = importer.NewFileSettingsResolver(pa).FetchSettings(
		context.Background(), slices.Values(reqs("motd")),
	)
	require.Error(t, err)
}

func settingsHandler(hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		if r.URL.Path != "/settings" {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/json")

		// Answers with more than asked for; the client must
		// narrow it down.
		_, _ = fmt.Fprintf(w,
			`{"settings":{"motd":"hello","aws":{"region":"eu-west-1"},`+
				`"keys":%q}}`,
			r.URL.Query().Get("keys"),
		)
	}
}

func TestAPISettingsResolver(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(settingsHandler(&hits))
	t.Cleanup(srv.Close)

	res, err := importer.NewAPISettingsResolver(importer.APIConfig{
		BaseURL: srv.URL + "/",
	})
	require.NoError(t, err)

	got, err := res.FetchSettings(
		context.Background(), slices.Values(reqs("motd", "keys", "ntp")),
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"settings": map[string]any{
			"motd": "hello",
			"keys": "keys,motd,ntp",
		},
	}, got.Map())
	assert.Equal(t, int32(1), hits.Load())
}

func TestAPISettingsResolver_no_requirements_no_request(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(settingsHandler(&hits))
	t.Cleanup(srv.Close)

	res, err := importer.NewAPISettingsResolver(importer.APIConfig{
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	got, err := res.FetchSettings(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"settings":{}}`, got.String())
	assert.Zero(t, hits.Load())
}

func TestAPISettingsResolver_status_error(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "datastore unavailable", http.StatusServiceUnavailable)
		},
	))
	t.Cleanup(srv.Close)

	res, err := importer.NewAPISettingsResolver(importer.APIConfig{
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	_, err = res.FetchSettings(
		context.Background(), slices.Values(reqs("motd")),
	)

	var se *importer.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "datastore unavailable", se.Body)
	assert.True(t, se.Temporary())
}

func TestAPISettingsResolver_unix_socket(t *testing.T) {
	t.Parallel()

	// Socket paths are length limited; keep it short.
	dir, err := os.MkdirTemp("", "cg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	sock := filepath.Join(dir, "api.sock")

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	var hits atomic.Int32

	srv := httptest.NewUnstartedServer(settingsHandler(&hits))
	require.NoError(t, srv.Listener.Close())
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	res, err := importer.NewAPISettingsResolver(importer.APIConfig{
		Socket: sock,
	})
	require.NoError(t, err)

	got, err := res.FetchSettings(
		context.Background(), slices.Values(reqs("aws")),
	)
	require.NoError(t, err)
	assert.Equal(t, `{"settings":{"aws":{"region":"eu-west-1"}}}`, got.String())
}

func TestAPISettingsResolver_canceled(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(settingsHandler(&hits))
	t.Cleanup(srv.Close)

	res, err := importer.NewAPISettingsResolver(importer.APIConfig{
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = res.FetchSettings(ctx, slices.Values(reqs("motd")))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewAPISettingsResolver_config_errors(t *testing.T) {
	t.Parallel()

	for _, cfg := range []importer.APIConfig{
		{},
		{BaseURL: "ftp://example.com"},
		{BaseURL: "://bad"},
	} {
		_, err := importer.NewAPISettingsResolver(cfg)
		require.ErrorIs(t, err, importer.ErrAPIConfig, cfg.BaseURL)
	}
}

func TestParseConfigMapRef(t *testing.T) {
	t.Parallel()

	ref, err := importer.ParseConfigMapRef("kube-system/node-settings:model.yaml")
	require.NoError(t, err)
	assert.Equal(t, importer.ConfigMapRef{
		Namespace: "kube-system",
		Name:      "node-settings",
		Key:       "model.yaml",
	}, ref)
	assert.Equal(t, "kube-system/node-settings:model.yaml", ref.String())

	ref, err = importer.ParseConfigMapRef("default/settings")
	require.NoError(t, err)
	assert.Empty(t, ref.Key)

	for _, bad := range []string{"settings", "/settings", "ns/", "a/b/c"} {
		_, err := importer.ParseConfigMapRef(bad)
		require.ErrorIs(t, err, importer.ErrConfigMapRef, bad)
	}
}

func TestConfigMapSettingsResolver(t *testing.T) {
	t.Parallel()

	client := fake.NewClientset(
		&corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Namespace: "ops", Name: "single"},
			Data: map[string]string{
				"model.yaml": "motd: from-yaml\nntp:\n  servers: [a]\n",
			},
		},
		&corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Namespace: "ops", Name: "multi"},
			Data: map[string]string{
				"settings.json": `{"settings": {"motd": "from-json"}}`,
				"notes.txt":     "ignored",
			},
		},
		&corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Namespace: "ops", Name: "other"},
			Data: map[string]string{
				"a.json": `{}`,
				"b.json": `{}`,
			},
		},
	)

	ctx := context.Background()

	tests := []struct {
		ref  string
		want string
	}{
		{"ops/single", `{"settings":{"motd":"from-yaml"}}`},
		{"ops/single:model.yaml", `{"settings":{"motd":"from-yaml"}}`},
		{"ops/multi", `{"settings":{"motd":"from-json"}}`},
	}

	for _, tt := range tests {
		ref, err := importer.ParseConfigMapRef(tt.ref)
		require.NoError(t, err)

		got, err := importer.NewConfigMapSettingsResolver(client, ref).
			FetchSettings(ctx, slices.Values(reqs("motd", "aws")))
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.want, got.String(), tt.ref)
	}

	for _, bad := range []string{"ops/other", "ops/single:missing.json"} {
		ref, err := importer.ParseConfigMapRef(bad)
		require.NoError(t, err)

		_, err = importer.NewConfigMapSettingsResolver(client, ref).
			FetchSettings(ctx, slices.Values(reqs("motd")))
		require.ErrorIs(t, err, importer.ErrConfigMapKey, bad)
	}

	ref, err := importer.ParseConfigMapRef("ops/absent")
	require.NoError(t, err)

	_, err = importer.NewConfigMapSettingsResolver(client, ref).
		FetchSettings(ctx, slices.Values(reqs("motd")))
	require.Error(t, err)
}
