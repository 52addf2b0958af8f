package importer

import (
	"iter"
	"slices"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/settings"
)

// Minimize narrows all, a bare settings document, to the
// extensions named by reqs and wraps the result under
// settings.Key. Requirements naming an absent extension are
// skipped; versions are ignored.
func Minimize(
	all settings.Document,
	reqs iter.Seq[extension.Requirement],
) settings.Document {
	return all.Select(Names(reqs)...).Wrap()
}

// Names collects the extension names of reqs, sorted and
// without duplicates.
func Names(reqs iter.Seq[extension.Requirement]) []string {
	var names []string

	if reqs == nil {
		return names
	}

	for req := range reqs {
		names = append(names, req.Name)
	}

	slices.Sort(names)

	return slices.Compact(names)
}
