package templating_test

import (
	"encoding/base64"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/confgen/templating"
)

func testContext() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"motd": "<hello & welcome>",
			"kubernetes": map[string]any{
				"cluster_name": "prod",
				"max_pods":     int64(110),
			},
			"ntp": map[string]any{
				"servers": []any{"a.pool", "b.pool"},
			},
		},
	}
}

func testRegistry(t *testing.T) *templating.Registry {
	t.Helper()

	reg := templating.NewRegistry()
	require.NoError(t, reg.Register(
		"upper",
		func(call *templating.Call, out io.Writer) error {
			str, err := call.String(0)
			if err != nil {
				return err
			}

			_, err = io.WriteString(out, strings.ToUpper(str))

			return err
		},
	))
	require.NoError(t, reg.Register(
		"base64_encode",
		func(call *templating.Call, out io.Writer) error {
			str, err := call.String(0)
			if err != nil {
				return err
			}

			_, err = io.WriteString(
				out, base64.StdEncoding.EncodeToString([]byte(str)),
			)

			return err
		},
	))

	return reg
}

func TestPongo2Backend_Render(t *testing.T) {
	t.Parallel()

	backend := templating.NewPongo2Backend()

	got, err := backend.Render(
		"motd={{ settings.motd }}\n"+
			"cluster={{ upper(settings.kubernetes.cluster_name) }}\n"+
			"pods={{ settings.kubernetes.max_pods }}\n"+
			"{% for s in settings.ntp.servers %}server {{ s }}\n{% endfor %}",
		testContext(),
		testRegistry(t),
	)
	require.NoError(t, err)
	assert.Equal(
		t,
		"motd=<hello & welcome>\n"+
			"cluster=PROD\n"+
			"pods=110\n"+
			"server a.pool\nserver b.pool\n",
		got,
	)
}

func TestPongo2Backend_missing_output_value_fails(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		"[{{ settings.aws.region }}]",
		"[{{ settings.kubernetes.clustr_name }}]",
		"[{{ settings.ntp.servers.5 }}]",
		"[{{ setings.motd }}]",
		"{% if settings.motd %}{{ settings.aws }}{% endif %}",
		"{{- settings.aws -}}",
	} {
		_, err := templating.NewPongo2Backend().Render(
			body, testContext(), testRegistry(t),
		)
		require.ErrorIs(t, err, templating.ErrUnknownPath, body)
	}
}

func TestPongo2Backend_unregistered_helper_fails(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		"[{{ upper(settings.motd) }}]",
		"{% if upper(settings.motd) %}x{% endif %}",
		`{{ settings.motd|default:upper("x") }}`,
	} {
		_, err := templating.NewPongo2Backend().Render(
			body, testContext(), templating.NewRegistry(),
		)
		require.ErrorIs(t, err, templating.ErrUnknownHelper, body)
	}
}

func TestPongo2Backend_missing_values_outside_output(t *testing.T) {
	t.Parallel()

	got, err := templating.NewPongo2Backend().Render(
		"{% if settings.aws %}aws{% else %}none{% endif %}|"+
			"{% for s in settings.aws.zones %}{{ s }}{% endfor %}|"+
			`{{ settings.aws.region|default:"eu-west-1" }}|`+
			"{{ settings.motd|default:settings.aws.motd }}",
		testContext(),
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, "none||eu-west-1|<hello & welcome>", got)
}

func TestPongo2Backend_missing_helper_argument_reaches_helper(t *testing.T) {
	t.Parallel()

	_, err := templating.NewPongo2Backend().Render(
		"{{ upper(settings.aws.region) }}",
		testContext(),
		testRegistry(t),
	)
	require.Error(t, err)
	assert.ErrorContains(t, err, "must be a string, got <nil>")
	assert.NotErrorIs(t, err, templating.ErrUnknownPath)
}

func TestPongo2Backend_template_bound_names(t *testing.T) {
	t.Parallel()

	got, err := templating.NewPongo2Backend().Render(
		"{% for s in settings.ntp.servers %}"+
			"{{ forloop.Counter }}:{{ s }} "+
			"{% endfor %}"+
			`{% set greeting = "hi" %}{{ greeting }} `+
			"{% with name=settings.kubernetes.cluster_name %}{{ name }}{% endwith %} "+
			`{% macro tag(key, val="none") %}{{ key }}={{ val }}{% endmacro %}`+
			`{{ tag("k") }} `+
			"{# {{ settings.aws }} #}"+
			"{% comment %}{{ missing() }}{% endcomment %}"+
			`{{ "{{ not.a.tag }}" }}`,
		testContext(),
		nil,
	)
	require.NoError(t, err)
	assert.Equal(
		t,
		"1:a.pool 2:b.pool hi prod k=none {{ not.a.tag }}",
		got,
	)
}

func TestPongo2Backend_loop_variable_out_of_scope(t *testing.T) {
	t.Parallel()

	_, err := templating.NewPongo2Backend().Render(
		"{% for s in settings.ntp.servers %}{{ s }}{% endfor %}{{ s }}",
		testContext(),
		nil,
	)
	require.ErrorIs(t, err, templating.ErrUnknownPath)
}

func TestPongo2Backend_helper_error_fails(t *testing.T) {
	t.Parallel()

	_, err := templating.NewPongo2Backend().Render(
		"{{ upper(settings.kubernetes.max_pods) }}",
		testContext(),
		testRegistry(t),
	)
	require.Error(t, err)
	assert.ErrorContains(t, err, "must be a string")
}

func TestPongo2Backend_syntax_error(t *testing.T) {
	t.Parallel()

	_, err := templating.NewPongo2Backend().Render(
		"{% if %}", testContext(), nil,
	)
	require.Error(t, err)
}

func TestPongo2Backend_refuses_template_loading(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{% include "/etc/passwd" %}`,
		`{% ssi "/etc/passwd" %}`,
	} {
		_, err := templating.NewPongo2Backend().Render(
			body, testContext(), nil,
		)
		require.Error(t, err, body)
	}
}

func TestPongo2Backend_helper_shadowing_context(t *testing.T) {
	t.Parallel()

	reg := templating.NewRegistry()
	require.NoError(t, reg.Register(
		"settings",
		func(*templating.Call, io.Writer) error { return nil },
	))

	_, err := templating.NewPongo2Backend().Render(
		"x", testContext(), reg,
	)
	require.ErrorIs(t, err, templating.ErrInvalidHelper)
}

func TestPongo2Backend_trim_blocks(t *testing.T) {
	t.Parallel()

	backend := &templating.Pongo2Backend{TrimBlocks: true}

	got, err := backend.Render(
		"{% if settings.motd %}\nyes\n{% endif %}\n",
		testContext(),
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, "yes\n", got)
}

func TestPongo2Backend_concurrent(t *testing.T) {
	t.Parallel()

	backend := templating.NewPongo2Backend()

	var wg sync.WaitGroup

	for range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			got, err := backend.Render(
				"{{ upper(settings.kubernetes.cluster_name) }}",
				testContext(),
				testRegistry(t),
			)
			assert.NoError(t, err)
			assert.Equal(t, "PROD", got)
		}()
	}

	wg.Wait()
}

func TestFastBackend_Render(t *testing.T) {
	t.Parallel()

	got, err := templating.NewFastBackend().Render(
		"motd={{ settings.motd }}\n"+
			"cluster={{upper settings.kubernetes.cluster_name}}\n"+
			"lit={{ upper \"a b\" }}\n"+
			"pods={{ settings.kubernetes.max_pods }}\n"+
			"first={{ settings.ntp.servers.1 }}\n"+
			"all={{ settings.ntp.servers }}\n"+
			"b64={{ base64_encode \"hi\" }}",
		testContext(),
		testRegistry(t),
	)
	require.NoError(t, err)
	assert.Equal(
		t,
		"motd=<hello & welcome>\n"+
			"cluster=PROD\n"+
			"lit=A B\n"+
			"pods=110\n"+
			"first=b.pool\n"+
			`all=["a.pool","b.pool"]`+"\n"+
			"b64=aGk=",
		got,
	)
}

func TestFastBackend_custom_tags(t *testing.T) {
	t.Parallel()

	backend := &templating.FastBackend{StartTag: "<%", EndTag: "%>"}

	got, err := backend.Render(
		"Hello <%settings.kubernetes.cluster_name%>! {{ untouched }}",
		testContext(),
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, "Hello prod! {{ untouched }}", got)
}

func TestFastBackend_errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want error
	}{
		{
			name: "unknown path",
			body: "{{ settings.aws.region }}",
			want: templating.ErrUnknownPath,
		},
		{
			name: "index out of range",
			body: "{{ settings.ntp.servers.7 }}",
			want: templating.ErrUnknownPath,
		},
		{
			name: "unknown helper",
			body: "{{ lower settings.motd }}",
			want: templating.ErrUnknownHelper,
		},
		{
			name: "unterminated string",
			body: `{{ upper "abc }}`,
			want: templating.ErrBadTag,
		},
		{
			name: "empty tag",
			body: "{{ }}",
			want: templating.ErrBadTag,
		},
		{
			name: "helper argument error",
			body: "{{ upper settings.kubernetes.max_pods }}",
			want: templating.ErrHelperArgs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := templating.NewFastBackend().Render(
				tt.body, testContext(), testRegistry(t),
			)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFastBackend_missing_end_tag(t *testing.T) {
	t.Parallel()

	_, err := templating.NewFastBackend().Render(
		"{{ settings.motd", testContext(), nil,
	)
	require.Error(t, err)
}
