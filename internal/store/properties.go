package store

import (
	"fmt"
	"maps"

	"github.com/roach88/tether/internal/cache"
	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

// Properties is the loosely grouped input to Add and Update. Only the
// groups that are set take part in the write.
type Properties struct {
	// ID is optional on Add (the source generates one) and must match the
	// accessor's identity when given elsewhere.
	ID            string
	Keys          map[string]string
	Attributes    ir.IRObject
	Relationships map[string]ir.RelationshipData
}

// attributesOnly reports whether p sets attributes and nothing else.
func (p Properties) attributesOnly() bool {
	return len(p.Attributes) > 0 && len(p.Keys) == 0 && len(p.Relationships) == 0
}

// empty reports whether p sets no field at all.
func (p Properties) empty() bool {
	return len(p.Attributes) == 0 && len(p.Keys) == 0 && len(p.Relationships) == 0
}

// record builds the record p describes under the given identity.
func (p Properties) record(id ir.RecordIdentity) (*ir.Record, error) {
	if p.ID != "" && p.ID != id.ID {
		return nil, fmt.Errorf("properties id %q does not match %s", p.ID, id)
	}
	r := &ir.Record{Type: id.Type, ID: id.ID}
	if len(p.Keys) > 0 {
		r.Keys = maps.Clone(p.Keys)
	}
	if len(p.Attributes) > 0 {
		r.Attributes = maps.Clone(p.Attributes)
	}
	if len(p.Relationships) > 0 {
		r.Relationships = make(map[string]ir.RelationshipData, len(p.Relationships))
		for name, data := range p.Relationships {
			r.Relationships[name] = data.Clone()
		}
	}
	return r, nil
}

// One links a to-one relationship to m. A nil Model is an empty link.
func One(m *cache.Model) ir.RelationshipData {
	if m == nil {
		return ir.ToOne(nil)
	}
	id := m.Identity()
	return ir.ToOne(&id)
}

// Many links a to-many relationship to models, in order.
func Many(models ...*cache.Model) ir.RelationshipData {
	ids := make([]ir.RecordIdentity, len(models))
	for i, m := range models {
		ids[i] = m.Identity()
	}
	return ir.ToMany(ids...)
}

// QueryOption refines a plural query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	filters []queryir.Predicate
	sort    []queryir.SortSpec
}

// Where adds a filter. Several filters are combined with And.
func Where(p queryir.Predicate) QueryOption {
	return func(o *queryOptions) {
		o.filters = append(o.filters, p)
	}
}

// AttributeEquals filters on attribute == value.
func AttributeEquals(attribute string, value ir.IRValue) QueryOption {
	return Where(queryir.Equals{Attribute: attribute, Value: value})
}

// KeyEquals filters on key == value.
func KeyEquals(key, value string) QueryOption {
	return Where(queryir.KeyEquals{Key: key, Value: value})
}

// SortBy orders results by attribute, ascending. Later calls break ties of
// earlier ones.
func SortBy(attribute string) QueryOption {
	return func(o *queryOptions) {
		o.sort = append(o.sort, queryir.SortSpec{Attribute: attribute})
	}
}

// SortByDesc orders results by attribute, descending.
func SortByDesc(attribute string) QueryOption {
	return func(o *queryOptions) {
		o.sort = append(o.sort, queryir.SortSpec{Attribute: attribute, Descending: true})
	}
}

// FindRecords builds the query expression a RecordsAccessor evaluates for
// typ and opts. It serves callers that run queries elsewhere, such as
// against the journal.
func FindRecords(typ string, opts ...QueryOption) queryir.FindRecords {
	o := applyQueryOptions(opts)
	return queryir.FindRecords{Type: typ, Filter: o.filter(), Sort: o.sort}
}

func applyQueryOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// filter folds the collected filters into one predicate, nil for none.
func (o queryOptions) filter() queryir.Predicate {
	switch len(o.filters) {
	case 0:
		return nil
	case 1:
		return o.filters[0]
	default:
		return queryir.And{Predicates: o.filters}
	}
}
