package helpers

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/byte4ever/confgen/templating"
)

// Extension names known to the default catalog.
const (
	ExtStd        = "std"
	ExtKubernetes = "kubernetes"
	ExtNetwork    = "network"
	ExtECS        = "ecs"
	ExtAWS        = "aws"
	ExtMOTD       = "motd"
	ExtNTP        = "ntp"
	ExtUpdates    = "updates"
)

// ErrInvalidExtension is returned for a catalog entry
// without an extension name.
var ErrInvalidExtension = errors.New("invalid extension name")

// Set is the helper table of one extension.
type Set map[string]templating.HelperFunc

// Catalog maps extension names to their helper sets. An
// extension with an empty set is recognized but provides no
// helpers.
type Catalog struct {
	sets map[string]Set
}

// NewCatalog copies sets into a catalog.
func NewCatalog(sets map[string]Set) (*Catalog, error) {
	const errCtx = "building helper catalog"

	cat := &Catalog{sets: make(map[string]Set, len(sets))}

	for ext, set := range sets {
		if ext == "" {
			return nil, fmt.Errorf("%s: %w: %q", errCtx, ErrInvalidExtension, ext)
		}

		for name, fn := range set {
			if name == "" || fn == nil {
				return nil, fmt.Errorf(
					"%s: %w: %s: invalid helper %q",
					errCtx, templating.ErrInvalidHelper, ext, name,
				)
			}
		}

		cat.sets[ext] = maps.Clone(set)
		if cat.sets[ext] == nil {
			cat.sets[ext] = Set{}
		}
	}

	return cat, nil
}

//nolint:gochecknoglobals // immutable after first use
var defaultCatalog = sync.OnceValue(func() *Catalog {
	cat, err := NewCatalog(map[string]Set{
		ExtStd:        stdSet(),
		ExtKubernetes: kubernetesSet(),
		ExtNetwork:    networkSet(),
		ExtECS:        ecsSet(),
		ExtAWS:        awsSet(),
		ExtMOTD:       nil,
		ExtNTP:        nil,
		ExtUpdates:    nil,
	})
	if err != nil {
		panic("helpers: " + err.Error())
	}

	return cat
})

// Default returns the built-in catalog. The value is
// shared; it must not be modified.
func Default() *Catalog {
	return defaultCatalog()
}

// Has reports whether ext is a known extension.
func (c *Catalog) Has(ext string) bool {
	_, ok := c.sets[ext]

	return ok
}

// Extensions returns the known extension names, sorted.
func (c *Catalog) Extensions() []string {
	return slices.Sorted(maps.Keys(c.sets))
}

// Names returns the helper names of ext, sorted.
func (c *Catalog) Names(ext string) []string {
	return slices.Sorted(maps.Keys(c.sets[ext]))
}

// Lookup returns helper name of extension ext.
func (c *Catalog) Lookup(ext, name string) (templating.HelperFunc, bool) {
	fn, ok := c.sets[ext][name]

	return fn, ok
}
