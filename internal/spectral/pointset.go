package spectral

import "sort"

// PointSet holds the discriminated points of one slice, keyed by bin index,
// with one map per component (channel). A PointSet is created fresh for
// every slice and discarded once its points have been consumed.
type PointSet struct {
	components []map[uint]DiscriminatedPoint
}

// NewPointSet returns an empty set with nComponents components.
func NewPointSet(nComponents int) *PointSet {
	if nComponents < 1 {
		nComponents = 1
	}
	ps := &PointSet{components: make([]map[uint]DiscriminatedPoint, nComponents)}
	for i := range ps.components {
		ps.components[i] = make(map[uint]DiscriminatedPoint)
	}
	return ps
}

// NComponents returns the number of components in the set.
func (ps *PointSet) NComponents() int {
	if ps == nil {
		return 0
	}
	return len(ps.components)
}

// Add stores p under its bin for the given component, growing the component
// list if needed. A second point for the same bin replaces the first.
func (ps *PointSet) Add(component uint, p DiscriminatedPoint) {
	for int(component) >= len(ps.components) {
		ps.components = append(ps.components, make(map[uint]DiscriminatedPoint))
	}
	p.Component = component
	ps.components[component][p.BinIndex] = p
}

// Component returns the bin -> point map for component c, or nil.
func (ps *PointSet) Component(c uint) map[uint]DiscriminatedPoint {
	if ps == nil || int(c) >= len(ps.components) {
		return nil
	}
	return ps.components[c]
}

// Sorted returns the points of component c in ascending bin order.
func (ps *PointSet) Sorted(c uint) []DiscriminatedPoint {
	m := ps.Component(c)
	out := make([]DiscriminatedPoint, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BinIndex < out[j].BinIndex })
	return out
}

// Len returns the total number of points across all components.
func (ps *PointSet) Len() int {
	if ps == nil {
		return 0
	}
	n := 0
	for _, m := range ps.components {
		n += len(m)
	}
	return n
}
