package refstats

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// Catalog is the Variable Catalog and Reference Statistics Store of one
// granularity. It is immutable once built and safe for concurrent use.
type Catalog struct {
	granularity territory.Granularity
	labels      []string
	byLabel     map[string]Descriptor
	byColumn    map[string]string
}

// NewCatalog indexes descriptors by label and by column. Labels keep the
// given order.
func NewCatalog(g territory.Granularity, descriptors []Descriptor) (*Catalog, error) {
	c := &Catalog{
		granularity: g,
		byLabel:     make(map[string]Descriptor, len(descriptors)),
		byColumn:    make(map[string]string, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.Label == "" || d.Column == "" {
			return nil, fmt.Errorf("%s catalog: descriptor needs label and column (%q/%q)", g, d.Label, d.Column)
		}
		if _, dup := c.byLabel[d.Label]; dup {
			return nil, fmt.Errorf("%s catalog: duplicate label %q", g, d.Label)
		}
		d.Granularity = g
		c.byLabel[d.Label] = d
		c.labels = append(c.labels, d.Label)
		if _, seen := c.byColumn[d.Column]; !seen {
			c.byColumn[d.Column] = d.Label
		}
	}
	return c, nil
}

func (c *Catalog) Granularity() territory.Granularity { return c.granularity }

func (c *Catalog) Len() int { return len(c.labels) }

// Lookup resolves a human label.
func (c *Catalog) Lookup(label string) (Descriptor, bool) {
	d, ok := c.byLabel[label]
	return d, ok
}

// ByColumn resolves a column identifier.
func (c *Catalog) ByColumn(column string) (Descriptor, bool) {
	label, ok := c.byColumn[column]
	if !ok {
		return Descriptor{}, false
	}
	return c.byLabel[label], true
}

// Labels returns the labels of one category, or all labels when category is
// empty.
func (c *Catalog) Labels(category Category) []string {
	var out []string
	for _, l := range c.labels {
		if category == "" || c.byLabel[l].Category == category {
			out = append(out, l)
		}
	}
	return out
}

// Descriptors returns a copy of every descriptor in label order.
func (c *Catalog) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.labels))
	for _, l := range c.labels {
		out = append(out, c.byLabel[l])
	}
	return out
}

// fileEntry is the on-disk shape: { label: { column_id, category, min, ... } }.
// nom_col and type are the field names of the published data files.
type fileEntry struct {
	Column        string  `json:"column_id,omitempty"`
	LegacyColumn  string  `json:"nom_col,omitempty"`
	Category      string  `json:"category,omitempty"`
	LegacyType    string  `json:"type,omitempty"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	P5            float64 `json:"p5"`
	Q1            float64 `json:"q1"`
	Q2            float64 `json:"q2"`
	Q3            float64 `json:"q3"`
	P95           float64 `json:"p95"`
	DirectionFlag *bool   `json:"direction_flag,omitempty"`
	UnitLabel     string  `json:"unit_label,omitempty"`
}

// MarshalJSON writes the catalog in the on-disk format.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	out := make(map[string]fileEntry, len(c.labels))
	for _, l := range c.labels {
		d := c.byLabel[l]
		dir := d.VulnerabilityIncreasing
		out[l] = fileEntry{
			Column:        d.Column,
			Category:      string(d.Category),
			Min:           d.Stats.Min,
			Max:           d.Stats.Max,
			P5:            d.Stats.P5,
			Q1:            d.Stats.Q1,
			Q2:            d.Stats.Median,
			Q3:            d.Stats.Q3,
			P95:           d.Stats.P95,
			DirectionFlag: &dir,
			UnitLabel:     d.Unit,
		}
	}
	return json.MarshalIndent(out, "", "    ")
}

// DecodeCatalog parses the on-disk format. When an entry has no direction
// flag or unit label, the matching definition (by column) supplies them;
// failing that, socio variables default to "higher is more vulnerable" and
// access variables to "higher is less vulnerable". Labels are sorted.
func DecodeCatalog(g territory.Granularity, raw []byte, defs []Definition) (*Catalog, error) {
	var entries map[string]fileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode %s catalog: %w", g, err)
	}
	byColumn := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byColumn[d.Column] = d
	}

	labels := make([]string, 0, len(entries))
	for l := range entries {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	descriptors := make([]Descriptor, 0, len(labels))
	for _, l := range labels {
		e := entries[l]
		column := e.Column
		if column == "" {
			column = e.LegacyColumn
		}
		catName := e.Category
		if catName == "" {
			catName = e.LegacyType
		}
		def, hasDef := byColumn[column]
		if catName == "" && hasDef {
			catName = string(def.Category)
		}
		cat, err := ParseCategory(catName)
		if err != nil {
			return nil, fmt.Errorf("decode %s catalog: %q: %w", g, l, err)
		}

		d := Descriptor{
			Label:    l,
			Column:   column,
			Category: cat,
			Unit:     e.UnitLabel,
			Stats: Stats{
				Min: e.Min, Max: e.Max,
				P5: e.P5, Q1: e.Q1, Median: e.Q2, Q3: e.Q3, P95: e.P95,
			},
		}
		switch {
		case e.DirectionFlag != nil:
			d.VulnerabilityIncreasing = *e.DirectionFlag
		case hasDef:
			d.VulnerabilityIncreasing = def.VulnerabilityIncreasing
		default:
			d.VulnerabilityIncreasing = cat == CategorySocio
		}
		if d.Unit == "" && hasDef {
			d.Unit = def.Unit
		}
		descriptors = append(descriptors, d)
	}
	return NewCatalog(g, descriptors)
}
