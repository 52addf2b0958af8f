package compare

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/byte4ever/confgen/settings"
)

// ErrNoModels is returned when a models directory holds no
// model.
var ErrNoModels = errors.New("no settings models found")

// Model is a named settings document.
type Model struct {
	// Name is "variant/model", or "model" for a file at
	// the top of the models directory.
	Name     string
	Settings settings.Document
}

// LoadModels loads the models below dir, laid out as
// <variant>/<model file>. Each settings file is one model
// named after its variant and its file name without
// extensions. Files with unknown extensions are skipped.
func LoadModels(dir string) ([]Model, error) {
	const errCtx = "loading models"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	var models []Model

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if !entry.IsDir() {
			model, ok, err := loadModel("", path)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", errCtx, err)
			}

			if ok {
				models = append(models, model)
			}

			continue
		}

		variant, err := loadVariant(entry.Name(), path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		models = append(models, variant...)
	}

	if len(models) == 0 {
		return nil, fmt.Errorf("%s: %w in %s", errCtx, ErrNoModels, dir)
	}

	return models, nil
}

func loadVariant(variant, dir string) ([]Model, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var models []Model

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		model, ok, err := loadModel(variant, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		if ok {
			models = append(models, model)
		}
	}

	return models, nil
}

func loadModel(variant, path string) (Model, bool, error) {
	if _, _, err := settings.FormatFromPath(path); err != nil {
		return Model{}, false, nil
	}

	doc, err := settings.LoadFile(path)
	if err != nil {
		return Model{}, false, err
	}

	name := modelName(filepath.Base(path))
	if variant != "" {
		name = variant + "/" + name
	}

	return Model{Name: name, Settings: doc.Unwrap()}, true, nil
}

// modelName strips the format extension and any ".zst":
// "aws-k8s.json.zst" becomes "aws-k8s".
func modelName(file string) string {
	base := strings.TrimSuffix(file, ".zst")

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadTemplatePaths reads a whitespace separated list of
// template paths.
func ReadTemplatePaths(path string) ([]string, error) {
	const errCtx = "reading template paths"

	by, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return strings.Fields(string(by)), nil
}
