package diagnostics

import (
	"testing"
)

// TestDeclareRecord checks that values can only be recorded for
// declared series
func TestDeclareRecord(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Declare("loss"); err != nil {
		t.Fatal(err)
	}
	if err := registry.Declare("loss"); err == nil {
		t.Error("expected error for duplicate declaration")
	}
	if err := registry.Declare(""); err == nil {
		t.Error("expected error for empty series name")
	}

	if err := registry.Record("loss", 1.5); err != nil {
		t.Fatal(err)
	}
	if err := registry.Record("regret", 1.0); err == nil {
		t.Error("expected error for undeclared series")
	}

	values, err := registry.Series("loss")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0] != 1.5 {
		t.Errorf("series should be [1.5], got %v", values)
	}

	// Series returns a copy, not the tracked slice
	values[0] = -1.0
	fresh, err := registry.Series("loss")
	if err != nil {
		t.Fatal(err)
	}
	if fresh[0] != 1.5 {
		t.Error("series should return a copy of the tracked values")
	}
}

// TestSaveLoad checks the gob persistence round trip
func TestSaveLoad(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Declare("zVariance"); err != nil {
		t.Fatal(err)
	}
	want := []float64{0.25, 0.5, 1.0}
	for _, value := range want {
		if err := registry.Record("zVariance", value); err != nil {
			t.Fatal(err)
		}
	}

	dir := t.TempDir()
	if err := registry.Save(dir); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadData(dir + "/zVariance")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != len(want) {
		t.Fatalf("loaded %v values, want %v", len(loaded), len(want))
	}
	for i := range want {
		if loaded[i] != want[i] {
			t.Errorf("value %v should be %v, got %v", i, want[i], loaded[i])
		}
	}
}

// TestNames checks that declared series are listed in sorted order
func TestNames(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"regret", "idsScore", "informationGain"} {
		if err := registry.Declare(name); err != nil {
			t.Fatal(err)
		}
	}

	names := registry.Names()
	want := []string{"idsScore", "informationGain", "regret"}
	if len(names) != len(want) {
		t.Fatalf("expected %v names, got %v", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("name %v should be %v, got %v", i, want[i], names[i])
		}
	}
}
