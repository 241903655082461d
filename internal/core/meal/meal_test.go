package meal

import (
	"testing"

	"nutrition-resolver/internal/core/quantity"
)

func item(cal, protein float64, unverified bool) *quantity.ScaledItem {
	it := quantity.NewScaledItem("food", "serving", 1, quantity.Macros{Calories: cal, Protein: protein})
	it.Unverified = unverified
	return it
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"breakfast", "Lunch", " DINNER ", "snack"} {
		if _, err := ParseType(s); err != nil {
			t.Errorf("ParseType(%q): %v", s, err)
		}
	}
	if _, err := ParseType("brunch"); err == nil {
		t.Error("expected brunch to be rejected")
	}
}

func TestGroupEdits(t *testing.T) {
	g := NewGroup(Breakfast)
	if g.ID == "" {
		t.Fatal("expected generated id")
	}
	g.Add(item(300, 10.1, false))
	g.Add(item(150, 2.2, true))

	if err := g.SetType("snack"); err != nil || g.Type != Snack {
		t.Fatalf("SetType: %v, type %s", err, g.Type)
	}
	if err := g.SetType("supper"); err == nil {
		t.Fatal("expected invalid meal type error")
	}
	if g.Type != Snack {
		t.Errorf("invalid SetType changed the type to %s", g.Type)
	}

	totals := g.Totals()
	if totals.Calories != 450 || totals.Protein != 12.3 {
		t.Errorf("totals = %+v", totals)
	}
	if !g.HasUnverified() {
		t.Error("expected unverified flag")
	}
}

func TestRestoreGroup(t *testing.T) {
	g := RestoreGroup(" meal-42 ", Lunch)
	if g.ID != "meal-42" || g.Type != Lunch || len(g.Items) != 0 {
		t.Errorf("unexpected group %+v", g)
	}
	if fresh := RestoreGroup("", Lunch); fresh.ID == "" {
		t.Error("expected generated id")
	}
}

func TestSummarize(t *testing.T) {
	breakfast := NewGroup(Breakfast)
	breakfast.Add(item(400, 20, false))
	lunch := NewGroup(Lunch)
	lunch.Add(item(700, 30, false))

	s := Summarize([]*Group{breakfast, lunch}, 0)
	if s.Totals.Calories != 1100 || s.Complete {
		t.Errorf("1100 kcal day should be incomplete: %+v", s)
	}

	snack := NewGroup(Snack)
	snack.Add(item(100, 1, true))
	s = Summarize([]*Group{breakfast, lunch, snack}, DefaultCompleteDayCalories)
	if !s.Complete {
		t.Errorf("1200 kcal day should be complete: %+v", s)
	}
	if !s.HasUnverified {
		t.Error("expected unverified flag to propagate")
	}
	if s.ByMeal[Lunch].Calories != 700 {
		t.Errorf("lunch calories = %v", s.ByMeal[Lunch].Calories)
	}

	if Summarize([]*Group{breakfast}, 300).Complete != true {
		t.Error("custom cutoff ignored")
	}
}
