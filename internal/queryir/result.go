package queryir

import (
	"slices"

	"github.com/roach88/tether/internal/ir"
)

// Result is the outcome of evaluating a query.
//
// The three-way distinction matters to callers:
//   - Found == false: undefined, the subject is not known to the source
//   - Found, singular, Record == nil: null, an empty to-one link
//   - Found: Record or Records hold the answer
type Result struct {
	Many    bool
	Found   bool
	Record  *ir.Record
	Records []*ir.Record
}

// Undefined returns a result for an unknown subject.
func Undefined(many bool) Result {
	return Result{Many: many}
}

// One returns a singular result. A nil record is an explicit null.
func One(r *ir.Record) Result {
	return Result{Found: true, Record: r}
}

// List returns a plural result.
func List(rs []*ir.Record) Result {
	if rs == nil {
		rs = []*ir.Record{}
	}
	return Result{Many: true, Found: true, Records: rs}
}

// Identities lists the identities in the result, in order.
func (r Result) Identities() []ir.RecordIdentity {
	if !r.Many {
		if r.Record == nil {
			return nil
		}
		return []ir.RecordIdentity{r.Record.Identity()}
	}
	ids := make([]ir.RecordIdentity, len(r.Records))
	for i, rec := range r.Records {
		ids[i] = rec.Identity()
	}
	return ids
}

// Apply returns the records matching filter, ordered by sort. The input
// slice is not modified.
func Apply(records []*ir.Record, filter Predicate, sort []SortSpec) []*ir.Record {
	out := make([]*ir.Record, 0, len(records))
	for _, r := range records {
		if Match(filter, r) {
			out = append(out, r)
		}
	}
	if len(sort) == 0 {
		return out
	}
	slices.SortStableFunc(out, func(a, b *ir.Record) int {
		for _, s := range sort {
			av, _ := a.Attribute(s.Attribute)
			bv, _ := b.Attribute(s.Attribute)
			c := ir.CompareValues(av, bv)
			if c == 0 {
				continue
			}
			if s.Descending && !ir.IsNull(av) && !ir.IsNull(bv) {
				return -c
			}
			return c
		}
		return 0
	})
	return out
}
