package importer_test

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/importer"
	"github.com/byte4ever/confgen/settings"
)

type flaky struct {
	errs  []error
	calls int
}

func (f *flaky) FetchSettings(
	_ context.Context,
	_ iter.Seq[extension.Requirement],
) (settings.Document, error) {
	f.calls++

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]

		return settings.Document{}, err
	}

	return settings.MustNew(map[string]any{"motd": "ok"}).Wrap(), nil
}

func fastBackoff() wait.Backoff {
	return wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 1}
}

func TestWithRetry_recovers(t *testing.T) {
	t.Parallel()

	inner := &flaky{errs: []error{
		&importer.StatusError{StatusCode: http.StatusServiceUnavailable},
		&importer.StatusError{StatusCode: http.StatusTooManyRequests},
	}}

	got, err := importer.WithRetry(inner, fastBackoff()).FetchSettings(
		context.Background(), slices.Values(reqs("motd")),
	)
	require.NoError(t, err)
	assert.Equal(t, `{"settings":{"motd":"ok"}}`, got.String())
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_gives_up(t *testing.T) {
	t.Parallel()

	transient := &importer.StatusError{StatusCode: http.StatusBadGateway}
	inner := &flaky{errs: []error{transient, transient, transient, transient}}

	_, err := importer.WithRetry(inner, fastBackoff()).FetchSettings(
		context.Background(), slices.Values(reqs("motd")),
	)
	require.ErrorIs(t, err, transient)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_permanent_error(t *testing.T) {
	t.Parallel()

	inner := &flaky{errs: []error{
		&importer.StatusError{StatusCode: http.StatusBadRequest},
	}}

	_, err := importer.WithRetry(inner, fastBackoff()).FetchSettings(
		context.Background(), slices.Values(reqs("motd")),
	)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_zero_steps_fetches_once(t *testing.T) {
	t.Parallel()

	boom := &importer.StatusError{StatusCode: http.StatusServiceUnavailable}

	inner := &flaky{errs: []error{boom}}

	_, err := importer.WithRetry(inner, wait.Backoff{}).FetchSettings(
		context.Background(), slices.Values(reqs("motd")),
	)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, inner.calls)

	inner = &flaky{}

	got, err := importer.WithRetry(inner, wait.Backoff{}).FetchSettings(
		context.Background(), slices.Values(reqs("motd")),
	)
	require.NoError(t, err)
	assert.Equal(t, `{"settings":{"motd":"ok"}}`, got.String())
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_cancel_interrupts_backoff(t *testing.T) {
	t.Parallel()

	transient := &importer.StatusError{StatusCode: http.StatusBadGateway}
	inner := &flaky{errs: []error{transient, transient}}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	slow := wait.Backoff{Steps: 2, Duration: time.Hour, Factor: 1}

	start := time.Now()

	_, err := importer.WithRetry(inner, slow).FetchSettings(
		ctx, slices.Values(reqs("motd")),
	)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, transient)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 1, inner.calls)
}

func TestTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, importer.Transient(
		apierrors.NewServiceUnavailable("down"),
	))
	assert.False(t, importer.Transient(
		apierrors.NewNotFound(
			schema.GroupResource{Resource: "configmaps"}, "settings",
		),
	))
	assert.False(t, importer.Transient(context.Canceled))
	assert.False(t, importer.Transient(errors.New("parse error")))
}
