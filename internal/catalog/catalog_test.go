package catalog

import (
	"strings"
	"testing"

	"monbattle/internal/battle"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, ok := c.Species("Emberpup"); !ok {
		t.Fatalf("expected emberpup")
	}
	if _, ok := c.Move("  WATER GUN "); !ok {
		t.Fatalf("move lookup should ignore case and padding")
	}
}

func TestEffectiveness(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cases := []struct {
		move string
		def  []string
		want float64
	}{
		{"fire", []string{"grass"}, 2},
		{"water", []string{"grass", "poison"}, 0.5},
		{"electric", []string{"ground", "flying"}, 0},
		{"grass", []string{"ground", "rock"}, 4},
		{"normal", []string{"water"}, 1},
	}
	for _, tc := range cases {
		if got := c.Effectiveness(tc.move, tc.def); got != tc.want {
			t.Fatalf("%s vs %v: expected %v got %v", tc.move, tc.def, tc.want, got)
		}
	}
}

func TestBuildMonster(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	m, err := c.BuildMonster("emberpup", 50)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.Name != "Emberpup" {
		t.Fatalf("expected title cased name, got %q", m.Name)
	}
	// hp = 2*45*50/100 + 50 + 10
	if m.MaxHP != 105 || m.CurrentHP != 105 {
		t.Fatalf("unexpected hp %d/%d", m.CurrentHP, m.MaxHP)
	}
	if len(m.Moves) != 3 || m.Moves[2].Name != "Flame Wheel" || m.Moves[2].Slot != 3 || m.Moves[0].Slot != 1 {
		t.Fatalf("unexpected moves %+v", m.Moves)
	}
	if m.Moves[1].Category != battle.CategorySpecial {
		t.Fatalf("ember should be special")
	}
	if _, err := c.BuildMonster("nope", 10); err == nil {
		t.Fatalf("expected unknown species error")
	}
	if _, err := c.BuildMonster("emberpup", 0); err == nil {
		t.Fatalf("expected level error")
	}
}

func TestBuildParty(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	party, err := c.BuildParty([]PartyMember{{Species: "drizzlet", Level: 20}, {Species: "pebblit", Level: 22}})
	if err != nil {
		t.Fatalf("build party: %v", err)
	}
	if len(party) != 2 || party[1].Name != "Pebblit" {
		t.Fatalf("unexpected party %+v", party)
	}
	if _, err := c.BuildParty(nil); err == nil {
		t.Fatalf("expected empty party error")
	}
}

func TestLoadRejectsUnknownMoves(t *testing.T) {
	doc := `{"types":{},"moves":[],"species":[{"name":"x","types":["normal"],"moves":["ghost punch"]}]}`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected unknown move error")
	}
}
