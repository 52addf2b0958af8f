package importer

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/settings"
)

// FileSettingsResolver reads settings from disk on every
// fetch, so each render sees a consistent snapshot. Path
// is a settings file or a directory of layered files (see
// settings.LoadDir).
type FileSettingsResolver struct {
	path string
}

// NewFileSettingsResolver returns a resolver reading path.
func NewFileSettingsResolver(path string) *FileSettingsResolver {
	return &FileSettingsResolver{path: path}
}

// FetchSettings implements SettingsResolver.
func (r *FileSettingsResolver) FetchSettings(
	ctx context.Context,
	reqs iter.Seq[extension.Requirement],
) (settings.Document, error) {
	const errCtx = "fetching settings from file"

	if err := ctx.Err(); err != nil {
		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	info, err := os.Stat(r.path)
	if err != nil {
		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	var all settings.Document

	if info.IsDir() {
		all, err = settings.LoadDir(r.path)
	} else {
		all, err = settings.LoadFile(r.path)
	}

	if err != nil {
		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return Minimize(all.Unwrap(), reqs), nil
}
