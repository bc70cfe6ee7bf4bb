package store

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/cache"
	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/memsource"
	"github.com/roach88/tether/internal/source"
	"github.com/roach88/tether/internal/testutil"
)

// recordingSource captures every submitted transform.
type recordingSource struct {
	*memsource.Source

	mu        sync.Mutex
	submitted [][]ir.Operation
}

func (r *recordingSource) Submit(ctx context.Context, ops ...ir.Operation) (*source.Request, error) {
	r.mu.Lock()
	r.submitted = append(r.submitted, slices.Clone(ops))
	r.mu.Unlock()
	return r.Source.Submit(ctx, ops...)
}

func (r *recordingSource) transforms() [][]ir.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.submitted)
}

func (r *recordingSource) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = nil
}

func newTestStore(t *testing.T) (*Store, *recordingSource) {
	t.Helper()
	mem := memsource.New(testutil.SolarSystem(),
		memsource.WithLogger(testutil.DiscardLogger()),
		memsource.WithIDGenerator(testutil.NewSequentialIDs()),
	)
	stop := mem.Start(context.Background())
	src := &recordingSource{Source: mem}
	s := New(src, WithLogger(testutil.DiscardLogger()))
	t.Cleanup(func() {
		s.Destroy()
		stop()
	})
	return s, src
}

func attrs(kv ...any) ir.IRObject {
	obj := ir.IRObject{}
	for i := 0; i < len(kv); i += 2 {
		v, err := ir.FromAny(kv[i+1])
		if err != nil {
			panic(err)
		}
		obj[kv[i].(string)] = v
	}
	return obj
}

func ids(models []*cache.Model) []string {
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.ID()
	}
	return out
}

func TestPlutoEndToEnd(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	pluto, err := s.Records("planet").Add(ctx, Properties{Attributes: attrs("name", "Pluto")})
	require.NoError(t, err)
	assert.Equal(t, "planet-1", pluto.ID())

	charon, err := s.Records("moon").Add(ctx, Properties{Attributes: attrs("name", "Charon")})
	require.NoError(t, err)
	nix, err := s.Records("moon").Add(ctx, Properties{Attributes: attrs("name", "Nix")})
	require.NoError(t, err)

	moons := s.RelatedRecords(pluto.Identity(), "moons")
	_, err = moons.Add(ctx, charon.Identity())
	require.NoError(t, err)
	_, err = moons.Add(ctx, nix.Identity())
	require.NoError(t, err)

	got, err := pluto.HasMany("moons")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, moon := range got {
		owner, err := moon.HasOne("planet")
		require.NoError(t, err)
		assert.Same(t, pluto, owner)
	}
	assert.Same(t, charon, got[0])
	assert.Same(t, nix, got[1])

	require.NoError(t, s.Record(nix.Identity()).Remove(ctx))

	got, err = pluto.HasMany("moons")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, charon, got[0])

	_, err = nix.Attr("name")
	assert.True(t, cache.IsStaleModelError(err))
}

func TestUpdateAttributesOnlyReplacesChangedAttributes(t *testing.T) {
	s, src := newTestStore(t)
	ctx := context.Background()

	pluto, err := s.Records("planet").Add(ctx, Properties{
		ID:         "pluto",
		Attributes: attrs("name", "Pluto", "classification", "dwarf", "order", 9),
	})
	require.NoError(t, err)
	src.reset()

	m, err := s.Record(pluto.Identity()).Update(ctx, Properties{
		Attributes: attrs("name", "X", "order", 9),
	})
	require.NoError(t, err)
	assert.Same(t, pluto, m)

	require.Len(t, src.transforms(), 1, "one transform")
	assert.Equal(t, []ir.Operation{
		ir.ReplaceAttribute{Record: pluto.Identity(), Attribute: "name", Value: ir.IRString("X")},
	}, src.transforms()[0], "unchanged order is not rewritten")

	name, err := pluto.Attr("name")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("X"), name)
	class, err := pluto.Attr("classification")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("dwarf"), class)
}

func TestUpdateWithoutChangesSubmitsNothing(t *testing.T) {
	s, src := newTestStore(t)
	ctx := context.Background()

	_, err := s.Records("planet").Add(ctx, Properties{ID: "pluto", Attributes: attrs("name", "Pluto")})
	require.NoError(t, err)
	src.reset()

	m, err := s.Records("planet").Update(ctx, Properties{ID: "pluto", Attributes: attrs("name", "Pluto")})
	require.NoError(t, err)
	assert.Equal(t, "pluto", m.ID())
	assert.Empty(t, src.transforms())

	_, err = s.Records("planet").Update(ctx, Properties{Attributes: attrs("name", "Pluto")})
	assert.Error(t, err, "records accessor needs an id")
}

func TestUpdateWithKeysIssuesUpdateRecord(t *testing.T) {
	s, src := newTestStore(t)
	ctx := context.Background()

	pluto, err := s.Records("planet").Add(ctx, Properties{ID: "pluto", Attributes: attrs("name", "Pluto")})
	require.NoError(t, err)
	src.reset()

	_, err = s.Record(pluto.Identity()).Update(ctx, Properties{
		Keys:       map[string]string{"remoteId": "p-9"},
		Attributes: attrs("order", 9),
	})
	require.NoError(t, err)

	require.Len(t, src.transforms(), 1)
	require.Len(t, src.transforms()[0], 1)
	_, ok := src.transforms()[0][0].(ir.UpdateRecord)
	assert.True(t, ok)

	key, err := pluto.Key("remoteId")
	require.NoError(t, err)
	assert.Equal(t, "p-9", key)
	name, err := pluto.Attr("name")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("Pluto"), name)
}

func TestUpdateMissingRecordIsRejected(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Record(ir.Identity("planet", "vulcan")).Update(context.Background(), Properties{
		Attributes: attrs("name", "Vulcan"),
	})
	require.Error(t, err)
	assert.True(t, memsource.IsNotFound(err))
}

func TestAddErrors(t *testing.T) {
	s, src := newTestStore(t)
	ctx := context.Background()

	_, err := s.Records("planet").Add(ctx, Properties{ID: "pluto", Attributes: attrs("name", "Pluto")})
	require.NoError(t, err)

	_, err = s.Records("planet").Add(ctx, Properties{ID: "pluto"})
	assert.True(t, memsource.IsRejected(err), "duplicate identity is rejected by the source")

	src.reset()
	_, err = s.Records("planet").Add(ctx, Properties{Attributes: attrs("radius", 1188)})
	assert.True(t, memsource.IsValidationError(err))
	assert.Len(t, src.transforms(), 1, "submitted, but refused before queuing")

	_, err = s.Record(ir.Identity("planet", "a")).Add(ctx, Properties{ID: "b"})
	assert.ErrorContains(t, err, "does not match")
}

func TestRelationshipSymmetry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p, err := s.Records("planet").Add(ctx, Properties{Attributes: attrs("name", "Jupiter")})
	require.NoError(t, err)
	m, err := s.Records("moon").Add(ctx, Properties{Attributes: attrs("name", "Io")})
	require.NoError(t, err)

	added, err := s.RelatedRecords(p.Identity(), "moons").Add(ctx, m.Identity())
	require.NoError(t, err)
	assert.Same(t, m, added)

	owner, ok := s.RelatedRecord(m.Identity(), "planet").Peek()
	require.True(t, ok)
	assert.Same(t, p, owner)

	got, err := m.HasOne("planet")
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestAbsenceVersusEmptyLink(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, ok := s.Record(ir.Identity("planet", "vulcan")).Raw()
	assert.Nil(t, r)
	assert.False(t, ok)
	m, ok := s.Record(ir.Identity("planet", "vulcan")).Peek()
	assert.Nil(t, m)
	assert.False(t, ok)

	moon, err := s.Records("moon").Add(ctx, Properties{Attributes: attrs("name", "Rogue")})
	require.NoError(t, err)

	r, ok = s.RelatedRecord(moon.Identity(), "planet").Raw()
	assert.Nil(t, r)
	assert.True(t, ok, "empty link is found but null")
	m, ok = s.RelatedRecord(moon.Identity(), "planet").Peek()
	assert.Nil(t, m)
	assert.True(t, ok)

	_, ok = s.RelatedRecord(ir.Identity("moon", "ghost"), "planet").Peek()
	assert.False(t, ok, "absent owner is undefined")
	_, ok = s.RelatedRecords(ir.Identity("planet", "ghost"), "moons").Peek()
	assert.False(t, ok)

	_, ok = s.Records("comet").Raw()
	assert.False(t, ok, "undeclared type is undefined")
	models, ok := s.Records("planet").Peek()
	assert.True(t, ok)
	assert.Empty(t, models)
}

func TestRelatedRecordAddReplaceRemove(t *testing.T) {
	s, src := newTestStore(t)
	ctx := context.Background()

	moon, err := s.Records("moon").Add(ctx, Properties{Attributes: attrs("name", "Phobos")})
	require.NoError(t, err)
	src.reset()

	link := s.RelatedRecord(moon.Identity(), "planet")
	mars, err := link.Add(ctx, Properties{Attributes: attrs("name", "Mars")})
	require.NoError(t, err)
	require.Len(t, src.transforms(), 1, "create and link in one transform")
	assert.Len(t, src.transforms()[0], 2)

	members, ok := s.RelatedRecords(mars.Identity(), "moons").Peek()
	require.True(t, ok)
	assert.Equal(t, []string{moon.ID()}, ids(members))

	earth, err := s.Records("planet").Add(ctx, Properties{ID: "earth", Attributes: attrs("name", "Earth")})
	require.NoError(t, err)
	id := earth.Identity()
	got, err := link.Replace(ctx, &id)
	require.NoError(t, err)
	assert.Same(t, earth, got)

	members, err = mars.HasMany("moons")
	require.NoError(t, err)
	assert.Empty(t, members, "inverse moved with the link")

	require.NoError(t, link.Remove(ctx))
	got, ok = link.Peek()
	assert.True(t, ok)
	assert.Nil(t, got)
	_, ok = s.Record(earth.Identity()).Raw()
	assert.True(t, ok, "clearing the link keeps the record")

	_, err = s.RelatedRecord(moon.Identity(), "name").Add(ctx, Properties{})
	assert.Error(t, err)
}

func TestRelatedRecordsCreateRemoveReplace(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saturn, err := s.Records("planet").Add(ctx, Properties{ID: "saturn", Attributes: attrs("name", "Saturn")})
	require.NoError(t, err)
	moons := s.RelatedRecords(saturn.Identity(), "moons")

	titan, err := moons.Create(ctx, Properties{ID: "titan", Attributes: attrs("name", "Titan")})
	require.NoError(t, err)
	rhea, err := moons.Create(ctx, Properties{ID: "rhea", Attributes: attrs("name", "Rhea")})
	require.NoError(t, err)

	members, ok := moons.Peek()
	require.True(t, ok)
	assert.Equal(t, []string{"titan", "rhea"}, ids(members))

	replaced, err := moons.Replace(ctx, rhea.Identity(), titan.Identity())
	require.NoError(t, err)
	assert.Equal(t, []string{"rhea", "titan"}, ids(replaced))

	require.NoError(t, moons.Remove(ctx, titan.Identity()))
	owner, err := titan.HasOne("planet")
	require.NoError(t, err)
	assert.Nil(t, owner)

	sorted, found, err := moons.Query(ctx, SortBy("name"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"rhea"}, ids(sorted))
}

func TestRecordsQueryOptions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	planets := s.Records("planet")

	for _, p := range []Properties{
		{ID: "mars", Attributes: attrs("name", "Mars", "classification", "terrestrial", "order", 4)},
		{ID: "pluto", Attributes: attrs("name", "Pluto", "classification", "dwarf", "order", 9), Keys: map[string]string{"remoteId": "p-9"}},
		{ID: "ceres", Attributes: attrs("name", "Ceres", "classification", "dwarf", "order", 5)},
	} {
		_, err := planets.Add(ctx, p)
		require.NoError(t, err)
	}

	all, found, err := planets.Query(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"mars", "pluto", "ceres"}, ids(all))

	dwarfs, _, err := planets.Query(ctx, AttributeEquals("classification", ir.IRString("dwarf")), SortByDesc("order"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pluto", "ceres"}, ids(dwarfs))

	keyed, _, err := planets.Query(ctx, KeyEquals("remoteId", "p-9"), AttributeEquals("order", ir.IRInt(9)))
	require.NoError(t, err)
	assert.Equal(t, []string{"pluto"}, ids(keyed))

	m, found, err := s.Record(ir.Identity("planet", "ceres")).Query(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Same(t, all[2], m)

	m, found, err = s.Record(ir.Identity("planet", "vulcan")).Query(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, m)
}

func TestLiveRecordsFollowsAddAndRemove(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	planets := s.Records("planet")

	for _, id := range []string{"a", "b", "c"} {
		_, err := planets.Add(ctx, Properties{ID: id, Attributes: attrs("name", id)})
		require.NoError(t, err)
	}

	lq, err := planets.Live()
	require.NoError(t, err)
	models, err := lq.Models()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(models))

	_, err = planets.Add(ctx, Properties{ID: "d", Attributes: attrs("name", "d")})
	require.NoError(t, err)
	require.NoError(t, planets.Remove(ctx, "b"))

	models, err = lq.Models()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, ids(models))

	s.Destroy()
	_, err = lq.Value()
	assert.ErrorIs(t, err, cache.ErrLiveQueryDisposed)
}

func TestLiveRelatedRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	moon, err := s.Records("moon").Add(ctx, Properties{ID: "luna", Attributes: attrs("name", "Luna")})
	require.NoError(t, err)
	lq, err := s.RelatedRecord(moon.Identity(), "planet").Live()
	require.NoError(t, err)
	defer lq.Dispose()

	got, err := lq.Model()
	require.NoError(t, err)
	assert.Nil(t, got)

	earth, err := s.RelatedRecord(moon.Identity(), "planet").Add(ctx, Properties{ID: "earth"})
	require.NoError(t, err)

	assert.Equal(t, cache.LiveQueryStale, lq.State())
	got, err = lq.Model()
	require.NoError(t, err)
	assert.Same(t, earth, got)
	assert.Equal(t, cache.LiveQuerySubscribed, lq.State())
}

func TestStoreUpdateSubmitsOneTransform(t *testing.T) {
	s, src := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx,
		ir.AddRecord{Record: &ir.Record{Type: "planet", ID: "venus"}},
		ir.AddRecord{Record: &ir.Record{Type: "moon", ID: "none", Relationships: map[string]ir.RelationshipData{
			"planet": ir.ToOne(&ir.RecordIdentity{Type: "planet", ID: "venus"}),
		}}},
	)
	require.NoError(t, err)
	assert.Len(t, src.transforms(), 1)

	members, ok := s.RelatedRecords(ir.Identity("planet", "venus"), "moons").Peek()
	require.True(t, ok)
	assert.Equal(t, []string{"none"}, ids(members))

	require.NoError(t, s.Update(ctx))
	assert.Len(t, src.transforms(), 1, "empty update submits nothing")
}

func TestOneAndMany(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	earth, err := s.Records("planet").Add(ctx, Properties{ID: "earth"})
	require.NoError(t, err)
	luna, err := s.Records("moon").Add(ctx, Properties{
		ID:            "luna",
		Relationships: map[string]ir.RelationshipData{"planet": One(earth)},
	})
	require.NoError(t, err)

	assert.Equal(t, ir.ToMany(luna.Identity()), Many(luna))
	assert.Equal(t, ir.ToOne(nil), One(nil))

	members, err := earth.HasMany("moons")
	require.NoError(t, err)
	assert.Equal(t, []*cache.Model{luna}, members)
}
