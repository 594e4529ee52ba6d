// Package types holds the data model shared across the scan-dispatch engine:
// file nodes, scanner rules, assignments, and the event records written back
// to the coordinator.
package types

// FlavorSet maps a classifier namespace ("external", "mime", "yara") to the
// set of labels that namespace produced for a file.
type FlavorSet map[string][]string

// Add appends a label to the given namespace, creating it if absent.
func (f FlavorSet) Add(namespace, label string) {
	f[namespace] = append(f[namespace], label)
}

// Union returns the flattened union of every namespace's labels. Order
// follows namespace iteration (external, mime, yara) then insertion order
// within each namespace; callers needing a stable presentation should sort
// the result themselves.
func (f FlavorSet) Union() []string {
	var out []string
	for _, ns := range []string{"external", "mime", "yara"} {
		out = append(out, f[ns]...)
	}
	return out
}

// Has reports whether label appears in any namespace.
func (f FlavorSet) Has(label string) bool {
	for _, labels := range f {
		for _, l := range labels {
			if l == label {
				return true
			}
		}
	}
	return false
}

// File is the in-memory descriptor carried through recursive traversal.
// It is deliberately a flat struct (not an interface) since every stage of
// the distributor reads and mutates the same fields in place.
type File struct {
	// UID is a fresh opaque identifier per file node. Generated for
	// children by the scanner that extracted them.
	UID string
	// Pointer is the coordinator key suffix holding this file's bytes.
	// Equals the request's root id for the root file.
	Pointer string
	// Parent is the UID of the parent file node; empty for the root.
	Parent string
	// Depth is 0 for the root; depth = parent.Depth + 1 for children.
	Depth int
	// Name is the optional filename used for naming-based matching.
	Name string
	// Source is the optional source label: the scanner name that
	// extracted this file, or a producer-supplied label for the root.
	Source string
	// Flavors accumulates classifier output across namespaces.
	Flavors FlavorSet
}

// NewRootFile builds the depth-0 file descriptor for a request.
func NewRootFile(rootID string) *File {
	return &File{
		UID:     rootID,
		Pointer: rootID,
		Depth:   0,
		Flavors: make(FlavorSet),
	}
}
