package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/oracle"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

type memStore struct {
	docs      map[string]*model.Document
	packs     map[string]*model.ContextPack
	artifacts map[string]*model.Artifact
}

func (m *memStore) Get(ctx context.Context, path string) (*model.Document, error) {
	doc, ok := m.docs[path]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return doc, nil
}

type packStore struct{ *memStore }

func (p packStore) Get(ctx context.Context, path string) (*model.ContextPack, error) {
	pack, ok := p.packs[path]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return pack, nil
}

func (m *memStore) Load(ctx context.Context, hash string) (*model.Artifact, error) {
	art, ok := m.artifacts[hash]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return art, nil
}

type stubOracle struct {
	replies map[oracle.Stage]oracle.Choice
	errs    map[oracle.Stage]error
	queries []oracle.Query
}

func (s *stubOracle) Select(ctx context.Context, q oracle.Query) (oracle.Choice, error) {
	s.queries = append(s.queries, q)
	if err := s.errs[q.Stage]; err != nil {
		return oracle.Choice{}, err
	}
	return s.replies[q.Stage], nil
}

func newStore() *memStore {
	m := &memStore{
		docs:      map[string]*model.Document{},
		packs:     map[string]*model.ContextPack{},
		artifacts: map[string]*model.Artifact{},
	}
	add := func(path, project string, kind model.DocKind, refs ...model.ArtifactRef) {
		doc := model.Document{Path: path, Kind: kind, Project: project, Title: "T " + path}
		m.docs[path] = &doc
		if kind == model.DocKindPack {
			m.packs[path] = &model.ContextPack{Document: doc, Body: "body of " + path, Artifacts: refs}
		}
	}
	add("packs/a.md", "billing", model.DocKindPack, model.ArtifactRef{Hash: "h1", Kind: model.ArtifactKindSQL}, model.ArtifactRef{Hash: "h2", Kind: model.ArtifactKindCode})
	add("packs/b.md", "growth", model.DocKindPack)
	add("packs/c.md", "billing", model.DocKindPack)
	add("packs/d.md", "billing", model.DocKindPack)
	add("chats/x.md", "billing", model.DocKindChat)
	m.artifacts["h1"] = &model.Artifact{Hash: "h1", Kind: model.ArtifactKindSQL, Content: "select 1"}
	return m
}

func hits(paths ...string) []model.SearchHit {
	out := make([]model.SearchHit, 0, len(paths))
	for i, p := range paths {
		out = append(out, model.SearchHit{Path: p, Score: 0.9 - float64(i)*0.1})
	}
	return out
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	in := hits("chats/x.md", "packs/a.md", "missing.md", "packs/b.md", "packs/c.md", "packs/d.md")

	got := Filter(ctx, in, 10, "", store)
	require.Len(t, got, 4)
	require.Equal(t, "packs/a.md", got[0].Path)
	require.Equal(t, "billing", got[0].Document.Project)

	got = Filter(ctx, in, 10, "billing", store)
	require.Equal(t, []string{"packs/a.md", "packs/c.md", "packs/d.md"}, paths(got))

	got = Filter(ctx, in, 2, "", store)
	require.Equal(t, []string{"packs/a.md", "packs/b.md"}, paths(got))
	require.Greater(t, got[0].Score, got[1].Score)

	require.Empty(t, Filter(ctx, nil, 10, "", store))
}

func paths(c []model.Candidate) []string {
	out := make([]string, 0, len(c))
	for _, x := range c {
		out = append(out, x.Path)
	}
	return out
}

func selPaths(s []model.PackSelection) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		out = append(out, x.Path)
	}
	return out
}

func TestSelectWithoutOracleTakesTopThree(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cands := Filter(ctx, hits("packs/a.md", "packs/b.md", "packs/c.md", "packs/d.md"), 10, "", store)
	sel := New(nil, packStore{store}, store, Config{}).Select(ctx, "q", cands)
	require.Equal(t, []string{"packs/a.md", "packs/b.md", "packs/c.md"}, selPaths(sel))
	for _, s := range sel {
		require.Nil(t, s.ArtifactIndexes)
	}
}

func TestSelectOracleFailureEqualsHeuristic(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cands := Filter(ctx, hits("packs/a.md", "packs/b.md", "packs/c.md", "packs/d.md"), 10, "", store)
	failing := &stubOracle{errs: map[oracle.Stage]error{oracle.StagePacks: errors.New("timeout")}}
	withFailure := New(failing, packStore{store}, store, Config{}).Select(ctx, "q", cands)
	disabled := New(nil, packStore{store}, store, Config{}).Select(ctx, "q", cands)
	require.Equal(t, selPaths(disabled), selPaths(withFailure))
}

func TestSelectParseErrorTakesTopTwo(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cands := Filter(ctx, hits("packs/a.md", "packs/b.md", "packs/c.md"), 10, "", store)
	o := &stubOracle{errs: map[oracle.Stage]error{oracle.StagePacks: &oracle.ParseError{Reply: "hmm"}}}
	sel := New(o, packStore{store}, store, Config{}).Select(ctx, "q", cands)
	require.Equal(t, []string{"packs/a.md", "packs/b.md"}, selPaths(sel))
	require.Len(t, o.queries, 1)
}

func TestSelectTwoStages(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cands := Filter(ctx, hits("packs/a.md", "packs/b.md", "packs/c.md"), 10, "", store)
	o := &stubOracle{replies: map[oracle.Stage]oracle.Choice{
		oracle.StagePacks:     {Indexes: []int{2, 0}},
		oracle.StageArtifacts: {Indexes: []int{1}},
	}}
	sel := New(o, packStore{store}, store, Config{}).Select(ctx, "revenue", cands)
	require.Equal(t, []string{"packs/c.md", "packs/a.md"}, selPaths(sel))
	require.Nil(t, sel[0].ArtifactIndexes)
	require.Equal(t, []int{1}, sel[1].ArtifactIndexes)

	require.Len(t, o.queries, 2)
	pq := o.queries[0]
	require.Contains(t, pq.Options[0].Text, `"T packs/a.md" (Project: billing)`)
	require.Contains(t, pq.Options[0].Text, "Available artifacts: 2 code/SQL/data blocks")
	require.Contains(t, pq.Options[1].Text, "Tables mentioned: None")
	aq := o.queries[1]
	require.Equal(t, "T packs/a.md", aq.Subject)
	require.Equal(t, "SQL: select 1", aq.Options[0].Text)
	require.Equal(t, "CODE: Could not load", aq.Options[1].Text)
}

func TestSelectArtifactFailureKeepsAll(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cands := Filter(ctx, hits("packs/a.md"), 10, "", store)
	o := &stubOracle{
		replies: map[oracle.Stage]oracle.Choice{oracle.StagePacks: {Indexes: []int{0}}},
		errs:    map[oracle.Stage]error{oracle.StageArtifacts: errors.New("down")},
	}
	sel := New(o, packStore{store}, store, Config{}).Select(ctx, "q", cands)
	require.Len(t, sel, 1)
	require.Nil(t, sel[0].ArtifactIndexes)
}

func TestSelectOracleNone(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cands := Filter(ctx, hits("packs/a.md", "packs/b.md"), 10, "", store)
	o := &stubOracle{replies: map[oracle.Stage]oracle.Choice{oracle.StagePacks: {None: true}}}
	require.Empty(t, New(o, packStore{store}, store, Config{}).Select(ctx, "q", cands))
}

func TestSelectScenarioTwoPositiveHits(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	// the 0.05 pack was already dropped by the search threshold
	in := []model.SearchHit{{Path: "packs/a.md", Score: 0.91}, {Path: "packs/b.md", Score: 0.60}}
	cands := Filter(ctx, in, 10, "", store)
	sel := New(nil, packStore{store}, store, Config{}).Select(ctx, "q", cands)
	require.Equal(t, []string{"packs/a.md", "packs/b.md"}, selPaths(sel))
	require.Equal(t, 0.91, sel[0].Score)
}

func TestSelectDropsInvalidOracleIndexes(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cands := Filter(ctx, hits("packs/a.md", "packs/b.md"), 10, "", store)
	tests := []struct {
		name      string
		packs     []int
		artifacts []int
		want      []string
		wantArts  []int
	}{
		{name: "out of range", packs: []int{5}, want: []string{}},
		{name: "negative", packs: []int{-1, 1}, want: []string{"packs/b.md"}},
		{name: "repeats", packs: []int{0, 0, 1, 0}, artifacts: []int{1, 1, 7}, want: []string{"packs/a.md", "packs/b.md"}, wantArts: []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &stubOracle{replies: map[oracle.Stage]oracle.Choice{
				oracle.StagePacks:     {Indexes: tt.packs},
				oracle.StageArtifacts: {Indexes: tt.artifacts},
			}}
			var sel []model.PackSelection
			require.NotPanics(t, func() {
				sel = New(o, packStore{store}, store, Config{}).Select(ctx, "q", cands)
			})
			require.Equal(t, tt.want, selPaths(sel))
			if tt.wantArts != nil {
				require.Equal(t, tt.wantArts, sel[0].ArtifactIndexes)
			}
		})
	}
}
