package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/robalobadob/sealed2048/internal/game"
	"github.com/robalobadob/sealed2048/internal/sealing"
)

func boardWith(t *testing.T, s sealing.Sealer, vals ...uint32) game.Grid {
	t.Helper()
	var g game.Grid
	for i, v := range vals {
		h, err := s.Seal(context.Background(), v)
		require.NoError(t, err)
		g[i/game.Size][i%game.Size] = h
	}
	return g
}

func TestDefaultCatalog(t *testing.T) {
	list, err := DefaultCatalog()
	require.NoError(t, err)
	require.Len(t, list, 5)

	var th []uint32
	for _, a := range list {
		th = append(th, a.Threshold)
		assert.NotEmpty(t, a.Title)
		assert.False(t, a.Unlocked)
		assert.False(t, a.Claimed)
	}
	assert.Equal(t, []uint32{128, 256, 512, 1024, 2048}, th)
}

func TestParseCatalogRejects(t *testing.T) {
	for name, lines := range map[string][]string{
		"short":     {"a 128"},
		"threshold": {"a lots Big"},
		"zero":      {"a 0 Nothing"},
		"duplicate": {"a 2 One", "a 4 Two"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog(lines)
			assert.Error(t, err)
		})
	}
}

func TestEvaluateUnlocksByMax(t *testing.T) {
	m := sealing.NewMockProvider()
	tr := NewTracker(m)
	list, err := DefaultCatalog()
	require.NoError(t, err)

	out, err := tr.Evaluate(context.Background(), boardWith(t, m, 2, 256, 4, 128), list)
	require.NoError(t, err)
	assert.True(t, out[0].Unlocked)
	assert.True(t, out[1].Unlocked)
	assert.False(t, out[2].Unlocked)
	assert.False(t, list[0].Unlocked, "input must not change")
}

func TestEvaluateIsMonotonic(t *testing.T) {
	m := sealing.NewMockProvider()
	tr := NewTracker(m)
	rapid.Check(t, func(rt *rapid.T) {
		list := []Achievement{{ID: "a", Threshold: 8}, {ID: "b", Threshold: 64}, {ID: "c", Threshold: 512}}
		steps := rapid.SliceOfN(rapid.IntRange(1, 10), 1, 6).Draw(rt, "maxes")
		var seenMax uint32
		for _, exp := range steps {
			v := uint32(1) << exp
			if v > seenMax {
				seenMax = v
			}
			h, err := m.Seal(context.Background(), v)
			if err != nil {
				rt.Fatalf("seal: %v", err)
			}
			var g game.Grid
			g[0][0] = h
			prev := list
			list, err = tr.Evaluate(context.Background(), g, list)
			if err != nil {
				rt.Fatalf("evaluate: %v", err)
			}
			for i := range list {
				if prev[i].Unlocked && !list[i].Unlocked {
					rt.Fatalf("%s relocked", list[i].ID)
				}
				if list[i].Unlocked != (seenMax >= list[i].Threshold) {
					rt.Fatalf("%s unlocked=%v with max %d", list[i].ID, list[i].Unlocked, seenMax)
				}
			}
		}
	})
}

func TestEvaluateSkipsUnreadable(t *testing.T) {
	aead, err := sealing.NewAEADProvider(sealing.AEADConfig{Secret: []byte("another-secret-of-32-bytes-long!")})
	require.NoError(t, err)
	m := sealing.NewMockProvider()

	g := boardWith(t, aead, 1024)
	g[1][1] = boardWith(t, m, 128)[0][0]

	out, err := NewTracker(aead).Evaluate(context.Background(), g, []Achievement{{ID: "x", Threshold: 512}})
	assert.ErrorIs(t, err, sealing.ErrUnsealFailure)
	assert.True(t, out[0].Unlocked)
}

func TestMarkClaimed(t *testing.T) {
	list := []Achievement{{ID: "a", Threshold: 2, Unlocked: true}, {ID: "b", Threshold: 4}}

	out, err := MarkClaimed(list, "a")
	require.NoError(t, err)
	assert.True(t, out[0].Claimed)
	assert.False(t, list[0].Claimed)

	again, err := MarkClaimed(out, "a")
	require.NoError(t, err)
	assert.Equal(t, out, again)

	_, err = MarkClaimed(list, "b")
	assert.ErrorIs(t, err, ErrNotUnlocked)
	_, err = MarkClaimed(list, "zzz")
	assert.ErrorIs(t, err, ErrUnknownAchievement)
}

func TestFreshKeepsClaims(t *testing.T) {
	list := []Achievement{
		{ID: "a", Unlocked: true, Claimed: true},
		{ID: "b", Unlocked: true},
		{ID: "c"},
	}
	out := Fresh(list)
	assert.Equal(t, []Achievement{
		{ID: "a", Unlocked: true, Claimed: true},
		{ID: "b"},
		{ID: "c"},
	}, out)

	a, ok := Find(out, "a")
	assert.True(t, ok)
	assert.True(t, a.Claimed)
	_, ok = Find(out, "nope")
	assert.False(t, ok)
}
