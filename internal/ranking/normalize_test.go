package ranking_test

import (
	"testing"

	"gamevault/internal/ranking"
)

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"The Witcher® 3: Wild Hunt", "witcher 3 wild hunt"},
		{"Pokémon™ Snap", "pokemon snap"},
		{"Ratchet & Clank", "ratchet and clank"},
		{"Assassin's Creed", "assassins creed"},
		{"  HALF-LIFE   2 ", "half life 2"},
		{"The", "the"},
		{"Command+Conquer", "command and conquer"},
		{"Ōkami HD", "okami hd"},
		{"S.T.A.L.K.E.R.: Shadow of Chernobyl", "s t a l k e r shadow of chernobyl"},
		{"Doom II: Hell on Earth", "doom 2 hell on earth"},
		{"Final Fantasy VII", "final fantasy 7"},
		{"Sid Meier's Civilization® VI", "sid meiers civilization 6"},
		{"V Rising", "v rising"},
		{"Mega Man X", "mega man x"},
		{"Rocky I", "rocky i"},
	}
	for _, tc := range cases {
		if got := ranking.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := ranking.Similarity("Half-Life 2", "half life 2"); got != 1 {
		t.Fatalf("identical after normalization = %v, want 1", got)
	}
	if got := ranking.Similarity("Doom II", "DOOM 2"); got != 1 {
		t.Fatalf("roman and arabic sequels should match, got %v", got)
	}
	if got := ranking.Similarity("Souls Dark", "Dark Souls"); got != 1 {
		t.Fatalf("token order should not matter, got %v", got)
	}
	near := ranking.Similarity("Doom", "Doom II")
	far := ranking.Similarity("Doom", "Quake")
	if !(near > far) {
		t.Fatalf("expected Doom II (%v) closer than Quake (%v)", near, far)
	}
	if got := ranking.Similarity("", "Doom"); got != 0 {
		t.Fatalf("empty title similarity = %v", got)
	}
	for _, pair := range [][2]string{{"a", "b"}, {"xyzzy", "Half-Life"}, {"Doom", "Doom 3"}} {
		s := ranking.Similarity(pair[0], pair[1])
		if s < 0 || s > 1 {
			t.Fatalf("similarity out of range: %v", s)
		}
	}
}
