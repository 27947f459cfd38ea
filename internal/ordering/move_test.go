package ordering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInsert_EmptyContainer(t *testing.T) {
	engine := MustNew(DefaultConfig())

	got, err := engine.ResolveInsert(nil, "x", 0)

	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "x", Position: 1000}}, got)
}

func TestResolveInsert_BeforeEverything(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1000}, {ID: "b", Position: 2000}}

	got, err := engine.ResolveInsert(seq, "y", 0)

	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "y", Position: 500}}, got)
}

func TestResolveInsert_Tail(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1000}, {ID: "b", Position: 2000}}

	got, err := engine.ResolveInsert(seq, "y", 2)

	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "y", Position: 3000}}, got)
}

func TestResolveInsert_TightNeighboursRebalance(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1000}, {ID: "b", Position: 1000.0005}}

	got, err := engine.ResolveInsert(seq, "n", 1)

	require.NoError(t, err)
	assert.Equal(t, []Update{
		{ID: "a", Position: 1000},
		{ID: "n", Position: 2000},
		{ID: "b", Position: 3000},
	}, got)
}

func TestResolveInsert_HeadAtFloorRebalances(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1}, {ID: "b", Position: 500}}

	got, err := engine.ResolveInsert(seq, "n", 0)

	require.NoError(t, err)
	assert.Equal(t, []Update{
		{ID: "n", Position: 1000},
		{ID: "a", Position: 2000},
		{ID: "b", Position: 3000},
	}, got)
}

func TestResolveInsert_SmallestGapStaysAboveFloor(t *testing.T) {
	engine := MustNew(Config{Gap: 1, MinPosition: 1, RebalanceEpsilon: 0.001})

	first, err := engine.ResolveInsert(nil, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "a", Position: 1}}, first)

	got, err := engine.ResolveInsert([]Item{{ID: "a", Position: 1}}, "b", 0)
	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "b", Position: 1}, {ID: "a", Position: 2}}, got)
	for _, u := range got {
		assert.GreaterOrEqual(t, u.Position, engine.Config().MinPosition, u.ID)
	}
}

func TestResolveInsert_Errors(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1000}}

	_, err := engine.ResolveInsert(seq, "a", 0)
	assert.ErrorIs(t, err, ErrItemExists)

	_, err = engine.ResolveInsert(seq, "b", 2)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = engine.ResolveInsert(seq, "b", -1)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = engine.ResolveInsert(seq, "", 0)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestResolveMove_WithinContainer(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1000}, {ID: "b", Position: 2000}, {ID: "c", Position: 3000}}

	cases := []struct {
		name   string
		moved  string
		target float64
		want   []Update
	}{
		{name: "tail to head", moved: "c", target: 0, want: []Update{{ID: "c", Position: 500}}},
		{name: "head to middle", moved: "a", target: 2500, want: []Update{{ID: "a", Position: 2500}}},
		{name: "head to tail", moved: "a", target: 5000, want: []Update{{ID: "a", Position: 4000}}},
		{name: "onto own position", moved: "b", target: 2000, want: nil},
		{name: "inside own slot", moved: "b", target: 1500, want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.ResolveMove(seq, tc.moved, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveMove_RebalanceNeverEscapes(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1000}, {ID: "b", Position: 1000.0004}, {ID: "c", Position: 5000}}

	got, err := engine.ResolveMove(seq, "c", 1000.0002)

	require.NoError(t, err)
	assert.Equal(t, []Update{
		{ID: "a", Position: 1000},
		{ID: "c", Position: 2000},
		{ID: "b", Position: 3000},
	}, got)
}

func TestResolveMove_Errors(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1000}, {ID: "b", Position: 2000}}

	_, err := engine.ResolveMove(seq, "missing", 10)
	assert.ErrorIs(t, err, ErrItemNotFound)

	for _, target := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -5} {
		_, err = engine.ResolveMove(seq, "a", target)
		assert.ErrorIs(t, err, ErrInvalidTarget, "target %v", target)
	}

	corrupt := []Item{{ID: "a", Position: 1000}, {ID: "b", Position: 1000}}
	_, err = engine.ResolveMove(corrupt, "a", 10)
	assert.ErrorIs(t, err, ErrCorruptSequence)
}

func TestResolveMove_Singleton(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "only", Position: 1234}}

	for _, target := range []float64{0, 1234, 99999} {
		got, err := engine.ResolveMove(seq, "only", target)
		require.NoError(t, err)
		assert.Empty(t, got)
	}

	got, err := engine.ResolveMoveToIndex(seq, "only", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveMoveToIndex(t *testing.T) {
	engine := MustNew(DefaultConfig())
	seq := []Item{{ID: "a", Position: 1000}, {ID: "b", Position: 2000}, {ID: "c", Position: 3000}}

	cases := []struct {
		name  string
		moved string
		index int
		want  []Update
	}{
		{name: "last to first", moved: "c", index: 0, want: []Update{{ID: "c", Position: 500}}},
		{name: "first to last", moved: "a", index: 2, want: []Update{{ID: "a", Position: 4000}}},
		{name: "first to middle", moved: "a", index: 1, want: []Update{{ID: "a", Position: 2500}}},
		{name: "last to middle", moved: "c", index: 1, want: []Update{{ID: "c", Position: 1500}}},
		{name: "stays put", moved: "b", index: 1, want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.ResolveMoveToIndex(seq, tc.moved, tc.index)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := engine.ResolveMoveToIndex(seq, "a", 3)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = engine.ResolveMoveToIndex(seq, "zzz", 0)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestResolveTransfer_TailOfSourceToHeadOfDest(t *testing.T) {
	engine := MustNew(DefaultConfig())
	source := []Item{{ID: "a1", Position: 1000}, {ID: "a2", Position: 2000}, {ID: "a3", Position: 3000}}
	dest := []Item{{ID: "b1", Position: 1000}, {ID: "b2", Position: 2000}}

	got, err := engine.ResolveTransfer(source, dest, "a3", 0)

	require.NoError(t, err)
	assert.Equal(t, []Item{{ID: "a1", Position: 1000}, {ID: "a2", Position: 2000}}, got.Source)
	assert.Equal(t, []Update{{ID: "a3", Position: dest[0].Position / 2}}, got.Updates)
}

func TestResolveTransfer_Branches(t *testing.T) {
	engine := MustNew(DefaultConfig())
	source := []Item{{ID: "x", Position: 42}}

	got, err := engine.ResolveTransfer(source, nil, "x", 0)
	require.NoError(t, err)
	assert.Empty(t, got.Source)
	assert.Equal(t, []Update{{ID: "x", Position: 1000}}, got.Updates)

	dest := []Item{{ID: "b1", Position: 1000}, {ID: "b2", Position: 2000}}
	got, err = engine.ResolveTransfer(source, dest, "x", 2)
	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "x", Position: 3000}}, got.Updates)

	got, err = engine.ResolveTransfer(source, dest, "x", 1)
	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "x", Position: 1500}}, got.Updates)

	tight := []Item{{ID: "b1", Position: 1000}, {ID: "b2", Position: 1000.0001}}
	got, err = engine.ResolveTransfer(source, tight, "x", 1)
	require.NoError(t, err)
	assert.Len(t, got.Updates, 3)
}

func TestResolveTransfer_Errors(t *testing.T) {
	engine := MustNew(DefaultConfig())
	source := []Item{{ID: "x", Position: 42}}
	dest := []Item{{ID: "x", Position: 1000}}

	_, err := engine.ResolveTransfer(source, nil, "missing", 0)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = engine.ResolveTransfer(source, dest, "x", 0)
	assert.ErrorIs(t, err, ErrItemExists)

	_, err = engine.ResolveTransfer(source, nil, "x", 1)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestCheckSequence(t *testing.T) {
	assert.NoError(t, CheckSequence(nil))
	assert.NoError(t, CheckSequence([]Item{{ID: "a", Position: 2}, {ID: "b", Position: 1}}))
	assert.ErrorIs(t, CheckSequence([]Item{{ID: "a", Position: 1}, {ID: "a", Position: 2}}), ErrCorruptSequence)
	assert.ErrorIs(t, CheckSequence([]Item{{ID: "a", Position: 1}, {ID: "b", Position: 1}}), ErrCorruptSequence)
	assert.ErrorIs(t, CheckSequence([]Item{{ID: "a", Position: math.NaN()}}), ErrCorruptSequence)
	assert.ErrorIs(t, CheckSequence([]Item{{ID: "", Position: 1}}), ErrCorruptSequence)
}
