package importer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/settings"
)

// RetryingSettingsResolver retries transient fetch
// failures of the resolver it wraps with exponential
// backoff.
type RetryingSettingsResolver struct {
	inner   SettingsResolver
	backoff wait.Backoff
}

// WithRetry wraps inner. backoff.Steps bounds the number
// of attempts; a value below one means a single attempt.
func WithRetry(
	inner SettingsResolver,
	backoff wait.Backoff,
) *RetryingSettingsResolver {
	backoff.Steps = max(backoff.Steps, 1)

	return &RetryingSettingsResolver{inner: inner, backoff: backoff}
}

// FetchSettings implements SettingsResolver. Waits between
// attempts end early when ctx is done.
func (r *RetryingSettingsResolver) FetchSettings(
	ctx context.Context,
	reqs iter.Seq[extension.Requirement],
) (settings.Document, error) {
	var (
		doc     settings.Document
		lastErr error
	)

	attempt := 0

	err := wait.ExponentialBackoffWithContext(
		ctx,
		r.backoff,
		func(ctx context.Context) (bool, error) {
			attempt++

			var err error

			doc, err = r.inner.FetchSettings(ctx, reqs)

			switch {
			case err == nil:
				return true, nil
			case ctx.Err() != nil || !Transient(err):
				return false, err
			}

			lastErr = err

			slog.Warn(
				"settings fetch failed, retrying",
				"attempt", attempt,
				"error", err,
			)

			return false, nil
		},
	)

	switch {
	case err == nil:
		return doc, nil
	case ctx.Err() != nil && lastErr != nil:
		return settings.Document{}, fmt.Errorf(
			"%w after %d attempt(s): %w", err, attempt, lastErr,
		)
	case wait.Interrupted(err) && lastErr != nil:
		return settings.Document{}, lastErr
	}

	return settings.Document{}, err
}

// Transient reports whether a settings fetch error may go
// away on retry.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	return apierrors.IsServiceUnavailable(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsInternalError(err)
}
