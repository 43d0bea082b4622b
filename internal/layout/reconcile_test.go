package layout

import (
	"encoding/json"
	"testing"

	"gorm.io/gorm"

	"conectabio/internal/database"
)

func card(id uint, cardType string) database.Card {
	return database.Card{
		Model: gorm.Model{ID: id},
		Type:  cardType,
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestReconcile_OnePlacementPerCard(t *testing.T) {
	cards := []database.Card{
		card(1, "title"),
		card(2, "link"),
		card(3, "note"),
		card(4, "image"),
		card(5, "map"),
		card(6, "document"),
	}

	saved := []SavedPlacement{
		{I: "2", X: intPtr(0), Y: intPtr(3), W: floatPtr(2), H: floatPtr(1)},
		{I: "999", X: intPtr(0), Y: intPtr(0), W: floatPtr(1), H: floatPtr(1)}, // orphan
	}

	got := Reconcile(cards, saved)
	if len(got) != len(cards) {
		t.Fatalf("expected %d placements, got %d", len(cards), len(got))
	}

	seen := map[string]bool{}
	for i, p := range got {
		if seen[p.I] {
			t.Fatalf("duplicate placement id %q", p.I)
		}
		seen[p.I] = true
		if want := CardKey(cards[i].ID); p.I != want {
			t.Fatalf("placement %d: expected id %q, got %q", i, want, p.I)
		}
	}
	if seen["999"] {
		t.Fatal("orphan placement survived reconciliation")
	}
}

func TestReconcile_OrphanDropped(t *testing.T) {
	cards := []database.Card{card(1, "note")}
	saved := []SavedPlacement{
		{I: "42", X: intPtr(1), Y: intPtr(1), W: floatPtr(1), H: floatPtr(1)},
	}

	got := Reconcile(cards, saved)
	if len(got) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(got))
	}
	if got[0].I != "1" {
		t.Fatalf("expected placement for card 1, got %q", got[0].I)
	}
}

func TestReconcile_TitleDefaults(t *testing.T) {
	got := Reconcile([]database.Card{card(7, "title")}, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(got))
	}
	p := got[0]
	if p.W != 4 || p.H != 1 {
		t.Fatalf("title default expected w=4 h=1, got w=%v h=%v", p.W, p.H)
	}
	if p.X != 0 {
		t.Fatalf("full-width card expected x=0, got %d", p.X)
	}
	if p.Y != AppendRow {
		t.Fatalf("synthesized placement expected append sentinel row, got %d", p.Y)
	}
}

func TestReconcile_BackfillsMissingSubfields(t *testing.T) {
	cards := []database.Card{card(3, "image")}
	saved := []SavedPlacement{
		{I: "3", X: intPtr(2), Y: intPtr(5)}, // w/h missing
	}

	got := Reconcile(cards, saved)
	p := got[0]
	if p.X != 2 || p.Y != 5 {
		t.Fatalf("persisted coordinates lost: x=%d y=%d", p.X, p.Y)
	}
	def := DefaultSize(CardImage)
	if p.W != def.W || p.H != def.H {
		t.Fatalf("expected backfilled size w=%v h=%v, got w=%v h=%v", def.W, def.H, p.W, p.H)
	}
}

func TestReconcile_FractionalHeightPreserved(t *testing.T) {
	cards := []database.Card{card(5, "note")}
	saved := []SavedPlacement{
		{I: "5", X: intPtr(0), Y: intPtr(0), W: floatPtr(1), H: floatPtr(0.5)},
	}

	got := Reconcile(cards, saved)
	if got[0].H != 0.5 {
		t.Fatalf("fractional height coerced: got %v", got[0].H)
	}
}

func TestReconcile_EmptyCardSet(t *testing.T) {
	got := Reconcile(nil, []SavedPlacement{{I: "1", X: intPtr(0), Y: intPtr(0)}})
	if len(got) != 0 {
		t.Fatalf("expected empty layout, got %d placements", len(got))
	}
}

func TestReconcile_Deterministic(t *testing.T) {
	cards := []database.Card{card(1, "note"), card(2, "note"), card(3, "link")}
	saved := []SavedPlacement{
		{I: "2", X: intPtr(1), Y: intPtr(2), W: floatPtr(1), H: floatPtr(2)},
	}

	first := Reconcile(cards, saved)
	second := Reconcile(cards, saved)
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("reconcile not deterministic:\n%s\n%s", a, b)
	}
}

func TestReconcile_NarrowCardsShareRow(t *testing.T) {
	cards := []database.Card{
		card(1, "note"),
		card(2, "note"),
		card(3, "note"),
		card(4, "note"),
		card(5, "note"),
	}

	got := Reconcile(cards, nil)
	for i, p := range got {
		want := i % Columns
		if p.X != want {
			t.Fatalf("note %d: expected x=%d, got %d", i, want, p.X)
		}
	}
}

func TestRemoveFromLayout(t *testing.T) {
	saved := []SavedPlacement{
		{I: "1"}, {I: "2"}, {I: "3"},
	}
	got := RemoveFromLayout(saved, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	for _, sp := range got {
		if sp.I == "2" {
			t.Fatal("placement for deleted card still present")
		}
	}
}

func TestParseLayout_Empty(t *testing.T) {
	saved, err := ParseLayout(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved != nil {
		t.Fatalf("expected nil layout, got %v", saved)
	}
}

func TestParseLayout_Invalid(t *testing.T) {
	if _, err := ParseLayout([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
