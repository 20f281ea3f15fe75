package model

import (
	"fmt"
	"slices"
	"sort"
)

// DockSet is a named contiguous range of dock numbers with exclusions.
type DockSet struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	DockFrom int    `json:"dockFrom"`
	DockTo   int    `json:"dockTo"`
	Excluded []int  `json:"excluded,omitempty"`
}

// Validate checks the range and that exclusions fall inside it.
func (d DockSet) Validate() error {
	if d.DockFrom > d.DockTo {
		return fmt.Errorf("dock set %d: dockFrom %d greater than dockTo %d", d.ID, d.DockFrom, d.DockTo)
	}
	for _, n := range d.Excluded {
		if n < d.DockFrom || n > d.DockTo {
			return fmt.Errorf("dock set %d: excluded dock %d outside range", d.ID, n)
		}
	}
	return nil
}

// Contains reports whether dockNo is a selectable dock of the set.
func (d DockSet) Contains(dockNo int) bool {
	if dockNo < d.DockFrom || dockNo > d.DockTo {
		return false
	}
	return !slices.Contains(d.Excluded, dockNo)
}

// Docks enumerates the selectable dock numbers in ascending order.
func (d DockSet) Docks() []int {
	if d.DockFrom > d.DockTo {
		return nil
	}
	out := make([]int, 0, d.DockTo-d.DockFrom+1)
	for n := d.DockFrom; n <= d.DockTo; n++ {
		if !slices.Contains(d.Excluded, n) {
			out = append(out, n)
		}
	}
	return out
}

// Catalog is an immutable lookup of dock sets by id.
type Catalog struct {
	sets map[int]DockSet
}

// DefaultDockSets returns the two loading bays the service ships with.
func DefaultDockSets() []DockSet {
	return []DockSet{
		{ID: 1, Name: "1번 대형 (32~41)", DockFrom: 32, DockTo: 41, Excluded: []int{39}},
		{ID: 2, Name: "2번 대형 (22~31)", DockFrom: 22, DockTo: 31, Excluded: []int{27}},
	}
}

// NewCatalog validates the sets and builds a catalog. Duplicate ids are rejected.
func NewCatalog(sets []DockSet) (*Catalog, error) {
	c := &Catalog{sets: make(map[int]DockSet, len(sets))}
	for _, s := range sets {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, ok := c.sets[s.ID]; ok {
			return nil, fmt.Errorf("duplicate dock set id %d", s.ID)
		}
		s.Excluded = slices.Clone(s.Excluded)
		c.sets[s.ID] = s
	}
	return c, nil
}

// Get returns the dock set for id.
func (c *Catalog) Get(id int) (DockSet, bool) {
	s, ok := c.sets[id]
	return s, ok
}

// List returns all dock sets ordered by id.
func (c *Catalog) List() []DockSet {
	out := make([]DockSet, 0, len(c.sets))
	for _, s := range c.sets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks that dockNo is selectable within the dock set.
func (c *Catalog) Validate(dockSetID, dockNo int) error {
	s, ok := c.sets[dockSetID]
	if !ok {
		return fmt.Errorf("%w: %w %d", ErrInvalidDock, ErrUnknownDockSet, dockSetID)
	}
	if !s.Contains(dockNo) {
		return fmt.Errorf("%w: dock %d not selectable in set %d", ErrInvalidDock, dockNo, dockSetID)
	}
	return nil
}
