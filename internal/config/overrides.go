package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"firm-panel-lab/internal/domain"
)

// OverrideEntry resolves one duplicate pair that neither the semi-identical
// merge nor the calendar-label tiebreak can settle. Entries encode judgment
// calls about the source data; they are versioned data, not logic.
type OverrideEntry struct {
	GVKey      string             `yaml:"gvkey"`
	ReportDate string             `yaml:"report_date"` // YYYY-MM-DD
	Fields     []string           `yaml:"fields"`      // conflicting-field signature
	Keep       map[string]float64 `yaml:"keep"`        // value to keep per conflicting field
}

// OverrideTable is the full set of manual duplicate resolutions, loaded once
// at startup and consulted only when the general rules are inconclusive.
type OverrideTable struct {
	Version string          `yaml:"version"`
	Entries []OverrideEntry `yaml:"entries"`

	index map[string]*OverrideEntry
}

// LoadOverrides reads an override table from a YAML file. An empty path
// returns an empty table.
func LoadOverrides(path string) (*OverrideTable, error) {
	if path == "" {
		return NewOverrideTable(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}

	table := &OverrideTable{}
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}

	if err := table.buildIndex(); err != nil {
		return nil, err
	}
	return table, nil
}

// NewOverrideTable builds a table from in-memory entries. Used by fixtures
// and tests. Panics on malformed entries; file loading validates instead.
func NewOverrideTable(entries []OverrideEntry) *OverrideTable {
	table := &OverrideTable{Entries: entries}
	if err := table.buildIndex(); err != nil {
		panic(err)
	}
	return table
}

// Len returns the number of entries in the table.
func (t *OverrideTable) Len() int {
	return len(t.Entries)
}

// Lookup finds the entry for a firm-period whose conflicting fields match the
// entry's signature exactly (order-insensitive).
func (t *OverrideTable) Lookup(gvkey string, reportDate time.Time, conflicting []string) (*OverrideEntry, bool) {
	e, ok := t.index[overrideKey(gvkey, reportDate.UTC().Format("2006-01-02"), conflicting)]
	return e, ok
}

func (t *OverrideTable) buildIndex() error {
	t.index = make(map[string]*OverrideEntry, len(t.Entries))
	for i := range t.Entries {
		e := &t.Entries[i]
		if e.GVKey == "" {
			return fmt.Errorf("override %d: missing gvkey", i)
		}
		if _, err := time.Parse("2006-01-02", e.ReportDate); err != nil {
			return fmt.Errorf("override %d (%s): bad report_date %q", i, e.GVKey, e.ReportDate)
		}
		if len(e.Fields) == 0 {
			return fmt.Errorf("override %d (%s): empty field signature", i, e.GVKey)
		}
		for _, f := range e.Fields {
			if !knownField(f) {
				return fmt.Errorf("override %d (%s): unknown field %q", i, e.GVKey, f)
			}
			if _, ok := e.Keep[f]; !ok {
				return fmt.Errorf("override %d (%s): no keep value for field %q", i, e.GVKey, f)
			}
		}
		for f := range e.Keep {
			if !containsField(e.Fields, f) {
				return fmt.Errorf("override %d (%s): keep value for %q outside field signature", i, e.GVKey, f)
			}
		}

		key := overrideKey(e.GVKey, e.ReportDate, e.Fields)
		if _, dup := t.index[key]; dup {
			return fmt.Errorf("override %d (%s %s): duplicate entry", i, e.GVKey, e.ReportDate)
		}
		t.index[key] = e
	}
	return nil
}

// overrideKey builds the lookup key from gvkey, date and the sorted field
// signature.
func overrideKey(gvkey, date string, fields []string) string {
	sig := make([]string, len(fields))
	copy(sig, fields)
	sort.Strings(sig)
	return gvkey + "|" + date + "|" + strings.Join(sig, ",")
}

func knownField(name string) bool {
	return containsField(domain.FieldNames, name)
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
