package catalog

import "strings"

// Match reports whether an event type name satisfies a subscription
// pattern. Patterns are dot-separated names where any segment may be
// "*", matching exactly one segment of the name; the bare pattern "*"
// matches every name. Segment counts must agree, so "invoice.*" matches
// "invoice.created" but not "invoice" or "invoice.created.v2".
func Match(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}

	// Walk both strings segment by segment without splitting.
	for {
		pseg, prest, pmore := strings.Cut(pattern, ".")
		nseg, nrest, nmore := strings.Cut(name, ".")
		if pseg != "*" && pseg != nseg {
			return false
		}
		if pmore != nmore {
			return false
		}
		if !pmore {
			return true
		}
		pattern, name = prest, nrest
	}
}
