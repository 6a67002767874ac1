package extract

import (
	"iter"
	"slices"
	"strings"

	"cdpcrawler/internal/domain"
)

// AnomalyFunc receives lines whose captured value failed shape validation
type AnomalyFunc func(domain.ParseAnomaly)

type parseOptions struct {
	onAnomaly AnomalyFunc
}

// ParseOption configures a single parse
type ParseOption func(*parseOptions)

// WithAnomalyHandler registers fn to receive parse anomalies
func WithAnomalyHandler(fn AnomalyFunc) ParseOption {
	return func(o *parseOptions) {
		o.onAnomaly = fn
	}
}

// Records returns the records found in text. The sequence is lazy and
// restartable: each range over it re-reads text from the first line.
//
// For each line the patterns are tried in declared order and only the first
// match is applied. A boundary pattern emits the pending record if its
// identity slot is bound, then starts a fresh one before binding its own
// values. At end of input any record with at least one bound slot is emitted.
func (t *Template) Records(text string, opts ...ParseOption) iter.Seq[Record] {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(Record) bool) {
		acc := newRecord()
		lineNum := 0

		for line := range strings.Lines(text) {
			lineNum++
			line = strings.TrimRight(line, "\r\n")

			for _, p := range t.patterns {
				m := p.re.FindStringSubmatch(line)
				if m == nil {
					continue
				}

				if p.boundary {
					if acc.Has(t.identity) {
						if !yield(acc) {
							return
						}
					}
					acc = newRecord()
				}

				for _, b := range p.bindings {
					value := strings.TrimSpace(m[b.group])
					if value == "" {
						continue
					}
					if !b.slot.shape.accepts(value, b.slot.enum) {
						if o.onAnomaly != nil {
							o.onAnomaly(domain.ParseAnomaly{
								Rule:    t.name,
								Slot:    b.slot.name,
								Shape:   string(b.slot.shape),
								Value:   value,
								LineNum: lineNum,
								Line:    line,
							})
						}
						continue
					}
					acc.bind(b.slot.name, value, b.slot.list)
				}
				break
			}
		}

		if acc.Len() > 0 {
			yield(acc)
		}
	}
}

// Parse collects every record in text
func (t *Template) Parse(text string, opts ...ParseOption) []Record {
	return slices.Collect(t.Records(text, opts...))
}
