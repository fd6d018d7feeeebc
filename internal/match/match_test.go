package match

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wpswap/internal/asset"
	"github.com/hpungsan/wpswap/internal/errors"
)

func local(path string) asset.LocalAsset {
	return asset.NewLocalAsset(path)
}

func remote(id int64, filename string) asset.RemoteAsset {
	return asset.NewRemoteAsset(id, filename, "https://example.com/uploads/"+filename, nil)
}

func TestMatch_SimplePair(t *testing.T) {
	result := Match(
		[]asset.LocalAsset{local("/img/sunset.webp")},
		[]asset.RemoteAsset{remote(1, "sunset.png"), remote(2, "beach.png")},
	)

	require.Len(t, result.Matches, 1)
	require.Equal(t, int64(1), result.Matches[0].Remote.ID)
	require.Equal(t, "/img/sunset.webp", result.Matches[0].Local.Path)
	require.Empty(t, result.UnmatchedLocals)
	require.Len(t, result.UnmatchedRemotes, 1)
	require.Equal(t, int64(2), result.UnmatchedRemotes[0].ID)
}

func TestMatch_CaseInsensitive(t *testing.T) {
	result := Match(
		[]asset.LocalAsset{local("/img/Sunset.webp")},
		[]asset.RemoteAsset{remote(1, "SUNSET-scaled.png")},
	)

	require.Len(t, result.Matches, 1)
}

func TestMatch_CanonicalPrefersFullSize(t *testing.T) {
	result := Match(
		[]asset.LocalAsset{local("/img/sunset.webp")},
		[]asset.RemoteAsset{
			remote(1, "sunset-scaled.png"),
			remote(2, "sunset-1024x768.png"),
			remote(3, "sunset.png"),
		},
	)

	require.Len(t, result.Matches, 1)
	require.Equal(t, int64(3), result.Matches[0].Remote.ID)
	require.Len(t, result.UnmatchedRemotes, 2)
}

func TestMatch_CanonicalLexicographicTieBreak(t *testing.T) {
	result := Match(
		[]asset.LocalAsset{local("/img/sunset.webp")},
		[]asset.RemoteAsset{
			remote(1, "sunset-scaled.png"),
			remote(2, "sunset-1024x768.png"),
		},
	)

	require.Len(t, result.Matches, 1)
	require.Equal(t, int64(2), result.Matches[0].Remote.ID)
	require.Equal(t, "sunset-1024x768.png", result.Matches[0].Remote.Filename)
}

func TestCanonical_SameFilenameUsesSmallestID(t *testing.T) {
	got := Canonical([]asset.RemoteAsset{remote(9, "a.png"), remote(4, "a.png"), remote(6, "a.png")})
	if got.ID != 4 {
		t.Errorf("Canonical ID = %d, want 4", got.ID)
	}
}

func TestCanonical_DeterministicAcrossOrder(t *testing.T) {
	group := []asset.RemoteAsset{
		remote(1, "photo-300x200.png"),
		remote(2, "photo-scaled.png"),
		remote(3, "photo-1024x768.png"),
		remote(4, "photo-150x150.png"),
	}
	want := Canonical(group)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]asset.RemoteAsset(nil), group...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := Canonical(shuffled); got.ID != want.ID {
			t.Fatalf("Canonical(%v) = %d, want %d", shuffled, got.ID, want.ID)
		}
	}
	if want.Filename != "photo-1024x768.png" {
		t.Errorf("Canonical filename = %q, want photo-1024x768.png", want.Filename)
	}
}

func TestMatch_AmbiguousLocals(t *testing.T) {
	result := Match(
		[]asset.LocalAsset{
			local("/img/sunset.webp"),
			local("/img/Sunset.webp"),
			local("/img/sunset-scaled.webp"),
		},
		[]asset.RemoteAsset{remote(1, "sunset.png")},
	)

	require.Len(t, result.Matches, 1)
	require.Equal(t, "/img/sunset.webp", result.Matches[0].Local.Path)

	require.Len(t, result.UnmatchedLocals, 2)
	for _, u := range result.UnmatchedLocals {
		require.Equal(t, ReasonAmbiguousLocal, u.Reason)
		require.Equal(t, "/img/sunset.webp", u.ConflictsWith)
	}

	issues := result.Issues()
	require.Len(t, issues, 2)
	require.True(t, errors.Is(issues[0], errors.ErrAmbiguousLocalMatch))
}

func TestMatch_AmbiguousLocalWithoutRemote(t *testing.T) {
	result := Match(
		[]asset.LocalAsset{local("/img/a.webp"), local("/img/A.webp")},
		nil,
	)

	require.Empty(t, result.Matches)
	require.Len(t, result.UnmatchedLocals, 2)
	require.Equal(t, ReasonNoMatch, result.UnmatchedLocals[0].Reason)
	require.Equal(t, ReasonAmbiguousLocal, result.UnmatchedLocals[1].Reason)
}

func TestMatch_NoMatchIsData(t *testing.T) {
	result := Match(
		[]asset.LocalAsset{local("/img/missing.webp")},
		[]asset.RemoteAsset{remote(1, "other.png")},
	)

	require.Empty(t, result.Matches)
	require.Len(t, result.UnmatchedLocals, 1)
	require.Equal(t, ReasonNoMatch, result.UnmatchedLocals[0].Reason)

	issues := result.Issues()
	require.Len(t, issues, 1)
	require.True(t, errors.Is(issues[0], errors.ErrNoMatchFound))
}

func TestMatch_EmptyInputs(t *testing.T) {
	result := Match(nil, nil)

	require.NotNil(t, result.Matches)
	require.NotNil(t, result.UnmatchedLocals)
	require.NotNil(t, result.UnmatchedRemotes)
	require.Empty(t, result.Matches)
}

func TestMatch_DuplicateRemoteIDIgnored(t *testing.T) {
	result := Match(
		[]asset.LocalAsset{local("/img/a.webp"), local("/img/b.webp")},
		[]asset.RemoteAsset{remote(1, "a.png"), remote(1, "b.png")},
	)

	require.Len(t, result.Matches, 1)
	require.Equal(t, "/img/a.webp", result.Matches[0].Local.Path)
	require.Empty(t, result.UnmatchedRemotes)
}

func TestMatch_NoRemoteMatchedTwice(t *testing.T) {
	locals := []asset.LocalAsset{
		local("/img/a.webp"), local("/img/a-scaled.webp"), local("/img/b.webp"),
		local("/img/c-300x200.webp"), local("/img/C.webp"), local("/img/d.webp"),
	}
	remotes := []asset.RemoteAsset{
		remote(1, "a.png"), remote(2, "a-1024x768.png"), remote(3, "b-scaled.png"),
		remote(4, "c.png"), remote(5, "c-150x150.png"), remote(6, "e.png"),
	}

	result := Match(locals, remotes)

	ids := make(map[int64]bool)
	paths := make(map[string]bool)
	for _, m := range result.Matches {
		if ids[m.Remote.ID] {
			t.Fatalf("remote %d matched twice", m.Remote.ID)
		}
		ids[m.Remote.ID] = true
		if paths[m.Local.Path] {
			t.Fatalf("local %s matched twice", m.Local.Path)
		}
		paths[m.Local.Path] = true
	}
	require.Len(t, result.Matches, 3)
	require.Equal(t, len(locals), len(result.Matches)+len(result.UnmatchedLocals))
	require.Equal(t, len(remotes), len(result.Matches)+len(result.UnmatchedRemotes))
}

func TestMatch_Repeatable(t *testing.T) {
	locals := []asset.LocalAsset{local("/img/x.webp"), local("/img/y.webp")}
	remotes := []asset.RemoteAsset{remote(3, "x-scaled.png"), remote(1, "x-640x480.png"), remote(2, "y.png")}

	first := Match(locals, remotes)
	for i := 0; i < 5; i++ {
		if got := Match(locals, remotes); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestMatch_DoesNotMutateInputs(t *testing.T) {
	remotes := []asset.RemoteAsset{remote(2, "a-scaled.png"), remote(1, "a-100x100.png")}
	before := append([]asset.RemoteAsset(nil), remotes...)

	Match([]asset.LocalAsset{local("/img/a.webp")}, remotes)

	require.Equal(t, before, remotes)
}
