package extract

import (
	"slices"
	"strings"
)

// Record is one completed entry: slot name to bound value(s). Scalar slots
// hold exactly one value, list slots hold their distinct values in order.
type Record struct {
	values map[string][]string
}

func newRecord() Record {
	return Record{values: make(map[string][]string)}
}

func (r Record) bind(name, value string, list bool) {
	if !list {
		r.values[name] = []string{value}
		return
	}
	if slices.Contains(r.values[name], value) {
		return
	}
	r.values[name] = append(r.values[name], value)
}

// Get returns the value bound to slot, or empty. For list slots it returns
// the first value.
func (r Record) Get(slot string) string {
	v := r.values[slot]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns a copy of every value bound to slot
func (r Record) Values(slot string) []string {
	return slices.Clone(r.values[slot])
}

// Has reports whether slot is bound
func (r Record) Has(slot string) bool {
	return len(r.values[slot]) > 0
}

// Len returns the number of bound slots
func (r Record) Len() int {
	return len(r.values)
}

// Map flattens the record, joining list values with a comma
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = strings.Join(v, ",")
	}
	return out
}
