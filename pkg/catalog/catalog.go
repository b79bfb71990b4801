// Package catalog maps detector class ids to animal names and flags the
// carnivorous species.
//
// A Catalog is immutable once built and safe for concurrent use.
package catalog

import (
	"fmt"
	"sort"
)

// Catalog is a read-only class table plus a carnivorous name set.
type Catalog struct {
	names       map[int]string
	carnivorous map[string]struct{}
}

// New builds a catalog from an id→name table and the carnivorous names.
// Both inputs are copied.
func New(names map[int]string, carnivorous []string) *Catalog {
	c := &Catalog{
		names:       make(map[int]string, len(names)),
		carnivorous: make(map[string]struct{}, len(carnivorous)),
	}
	for id, name := range names {
		c.names[id] = name
	}
	for _, name := range carnivorous {
		c.carnivorous[name] = struct{}{}
	}
	return c
}

// Placeholder returns the synthesized name used for ids outside the table.
func Placeholder(classID int) string {
	return fmt.Sprintf("Class_%d", classID)
}

// NameOf returns the display name for a class id. Unknown ids map to
// Placeholder(id).
func (c *Catalog) NameOf(classID int) string {
	if name, ok := c.names[classID]; ok {
		return name
	}
	return Placeholder(classID)
}

// IsCarnivorous reports whether name is in the carnivorous set.
// The match is exact and case-sensitive.
func (c *Catalog) IsCarnivorous(name string) bool {
	_, ok := c.carnivorous[name]
	return ok
}

// Len returns the number of known classes.
func (c *Catalog) Len() int {
	return len(c.names)
}

// IDs returns the known class ids in ascending order.
func (c *Catalog) IDs() []int {
	ids := make([]int, 0, len(c.names))
	for id := range c.names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Carnivorous returns the carnivorous names sorted alphabetically.
func (c *Catalog) Carnivorous() []string {
	out := make([]string, 0, len(c.carnivorous))
	for name := range c.carnivorous {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
