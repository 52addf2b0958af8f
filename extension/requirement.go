package extension

import "slices"

// Requirement is a template's declared dependency on one
// extension.
type Requirement struct {
	// Name identifies the extension; it is also the
	// top-level settings key the extension owns.
	Name string
	// Version is the declared version constraint. Empty
	// means unconstrained. It is informational only.
	Version string
	// Helpers optionally restricts which of the
	// extension's helpers get registered. Nil means all.
	Helpers []string
}

// String returns "name" or "name@version".
func (r Requirement) String() string {
	if r.Version == "" {
		return r.Name
	}

	return r.Name + "@" + r.Version
}

// Unconstrained reports whether no version was declared.
func (r Requirement) Unconstrained() bool {
	return r.Version == ""
}

// clone copies the Helpers slice so callers cannot alias
// cached requirements.
func (r Requirement) clone() Requirement {
	r.Helpers = slices.Clone(r.Helpers)

	return r
}
