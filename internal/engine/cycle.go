package engine

import "slices"

// resolutionPath is the chain of block names one request is currently
// resolving, root first.
//
// Each recursive step gets its own copy, so concurrent requests (and sibling
// subtrees) never share a path. Entering a name already on the path is a
// cycle: without the check the resolver would recurse forever, or wait on
// its own in-flight compilation.
type resolutionPath []string

// enter returns the path extended by name, or a *CycleError naming the
// cycle from the first occurrence of name.
func (p resolutionPath) enter(name string) (resolutionPath, error) {
	if i := slices.Index(p, name); i >= 0 {
		cycle := append(slices.Clone(p[i:]), name)
		return nil, &CycleError{Path: cycle}
	}
	next := make(resolutionPath, len(p), len(p)+1)
	copy(next, p)
	return append(next, name), nil
}
