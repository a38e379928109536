package storage

import (
	"testing"

	"causalkv/internal/clock"
)

func v(counter uint64, replica int) clock.Version {
	return clock.Version{Counter: counter, Replica: replica}
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		input   string
		want    Variant
		wantErr bool
	}{
		{input: "safe", want: Safe},
		{input: "", want: Safe},
		{input: "fixed", want: Safe},
		{input: "Unsafe", want: Unsafe},
		{input: "broken", want: Unsafe},
		{input: "maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVariant(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVariant(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	for _, variant := range []Variant{Safe, Unsafe} {
		t.Run(variant.String(), func(t *testing.T) {
			store := New(variant, 0)
			if store.Variant() != variant {
				t.Fatalf("Expected variant %s, got %s", variant, store.Variant())
			}

			if _, ok := store.Get("k"); ok {
				t.Error("Expected no value for missing key")
			}

			_, version := store.Set("k", "A")
			if version != v(1, 0) {
				t.Errorf("Expected first version 1@0, got %s", version)
			}

			value, ok := store.Get("k")
			if !ok || value != "A" {
				t.Errorf("Expected 'A', got %q (found=%v)", value, ok)
			}

			_, version = store.Set("k", "B")
			if version != v(2, 0) {
				t.Errorf("Expected second version 2@0, got %s", version)
			}
			if value, _ := store.Get("k"); value != "B" {
				t.Errorf("Expected overwrite to 'B', got %q", value)
			}
			if len(store.Entries()) != 1 {
				t.Errorf("Expected a single entry after overwrite, got %v", store.Entries())
			}

			ctx, ok := store.Delete("k")
			if !ok {
				t.Fatal("Expected delete of present key to broadcast")
			}
			if !ctx.Equal(clock.NewContext(v(2, 0))) {
				t.Errorf("Expected delete context {2@0}, got %s", ctx)
			}
			if _, ok := store.Get("k"); ok {
				t.Error("Expected no value after delete")
			}

			if _, ok := store.Delete("k"); ok {
				t.Error("Deleting an absent key must have nothing to broadcast")
			}
		})
	}
}

func TestContextStore_SetReturnsSupersededContext(t *testing.T) {
	store := NewContextStore(0)

	ctx, _ := store.Set("k", "A")
	if ctx.Len() != 0 {
		t.Errorf("Expected empty context for first write, got %s", ctx)
	}

	ctx, _ = store.Set("k", "B")
	if !ctx.Equal(clock.NewContext(v(1, 0))) {
		t.Errorf("Expected context {1@0}, got %s", ctx)
	}

	// other keys are not part of the context
	store.Set("other", "X")
	ctx, _ = store.Set("k", "C")
	if !ctx.Equal(clock.NewContext(v(2, 0))) {
		t.Errorf("Expected context {2@0}, got %s", ctx)
	}
}

func TestContextStore_ConcurrentWritesKeepSiblings(t *testing.T) {
	store := NewContextStore(0)
	store.Set("k", "A") // 1@0
	store.ReceiveSet(nil, v(1, 1), "k", "B")

	if len(store.Siblings()) != 2 {
		t.Fatalf("Expected two siblings, got %v", store.Siblings())
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected resolved view with one entry, got %v", entries)
	}
	if entries[0].Version != v(1, 1) || entries[0].Value != "B" {
		t.Errorf("Expected 1@1 to win the tie-break, got %s", entries[0])
	}
	if value, _ := store.Get("k"); value != "B" {
		t.Errorf("Expected Get to return the winner 'B', got %q", value)
	}

	// the next local write observes and supersedes both siblings
	ctx, version := store.Set("k", "C")
	if !ctx.Equal(clock.NewContext(v(1, 0), v(1, 1))) {
		t.Errorf("Expected context covering both siblings, got %s", ctx)
	}
	if version != v(2, 0) {
		t.Errorf("Expected 2@0 after observing 1@1, got %s", version)
	}
	if len(store.Siblings()) != 1 {
		t.Errorf("Expected siblings to collapse, got %v", store.Siblings())
	}
}

func TestContextStore_ReceiveSetRemovesContext(t *testing.T) {
	store := NewContextStore(1)
	store.ReceiveSet(nil, v(1, 0), "k", "A")
	store.ReceiveSet(clock.NewContext(v(1, 0)), v(2, 0), "k", "B")

	entries := store.Entries()
	if len(entries) != 1 || entries[0].Value != "B" {
		t.Fatalf("Expected only 'B' to remain, got %v", entries)
	}
	if store.Counter() != 2 {
		t.Errorf("Expected counter advanced to 2, got %d", store.Counter())
	}
}

func TestContextStore_LateWriteForSupersededVersionIsIgnored(t *testing.T) {
	store := NewContextStore(1)

	// overwrite arrives before the write it supersedes
	store.ReceiveSet(clock.NewContext(v(1, 0)), v(2, 0), "k", "B")
	store.ReceiveSet(nil, v(1, 0), "k", "A")

	entries := store.Entries()
	if len(entries) != 1 || entries[0].Value != "B" {
		t.Errorf("Expected late superseded write to be ignored, got %v", entries)
	}
	if len(store.Siblings()) != 1 {
		t.Errorf("Expected no sibling for the superseded write, got %v", store.Siblings())
	}

	// delete arrives before the write it deletes
	store.ReceiveDelete(clock.NewContext(v(3, 0)))
	store.ReceiveSet(clock.NewContext(v(2, 0)), v(3, 0), "k", "C")
	if _, ok := store.Get("k"); ok {
		t.Error("Expected deleted write not to be resurrected")
	}
	if !store.Obsolete().Equal(clock.NewContext(v(1, 0), v(2, 0), v(3, 0))) {
		t.Errorf("Unexpected obsolete set %s", store.Obsolete())
	}
}

func TestContextStore_ObsoleteHoldsEverySupersededVersion(t *testing.T) {
	store := NewContextStore(0)
	var superseded []clock.Version
	for i := 0; i < 50; i++ {
		ctx, _ := store.Set("k", "v")
		superseded = append(superseded, ctx...)
		if store.Obsolete().Len() != len(superseded) {
			t.Fatalf("After %d overwrites expected %d obsolete versions, got %s", i+1, len(superseded), store.Obsolete())
		}
	}
	ctx, _ := store.Delete("k")
	superseded = append(superseded, ctx...)

	if !store.Obsolete().Equal(clock.NewContext(superseded...)) {
		t.Errorf("Unexpected obsolete set %s", store.Obsolete())
	}
	if len(store.Siblings()) != 0 {
		t.Errorf("Expected no live entries, got %v", store.Siblings())
	}
}

func TestContextStore_ReceiveDeleteAdvancesCounter(t *testing.T) {
	store := NewContextStore(0)
	store.ReceiveDelete(clock.NewContext(v(2, 1), v(5, 1)))
	if store.Counter() != 5 {
		t.Errorf("Expected counter 5, got %d", store.Counter())
	}

	store.ReceiveDelete(nil)
	if store.Counter() != 5 {
		t.Errorf("Empty context must not change counter, got %d", store.Counter())
	}
}

func TestLWWStore_SetSendsNoContext(t *testing.T) {
	store := NewLWWStore(0)
	store.Set("k", "A")
	ctx, _ := store.Set("k", "B")
	if ctx.Len() != 0 {
		t.Errorf("Expected no context from the unsafe store, got %s", ctx)
	}
}

func TestLWWStore_ReceiveSetComparesTimestamps(t *testing.T) {
	store := NewLWWStore(0)
	store.ReceiveSet(nil, v(2, 1), "k", "new")
	store.ReceiveSet(nil, v(1, 1), "k", "old")

	if value, _ := store.Get("k"); value != "new" {
		t.Errorf("Expected older write to be dropped, got %q", value)
	}

	store.ReceiveSet(nil, v(3, 1), "k", "newer")
	entries := store.Entries()
	if len(entries) != 1 || entries[0].Value != "newer" {
		t.Errorf("Expected newer write to replace, got %v", entries)
	}
	if store.Counter() != 3 {
		t.Errorf("Expected counter 3, got %d", store.Counter())
	}
}

func TestLWWStore_ReceiveDeleteUsesFirstVersionOnly(t *testing.T) {
	store := NewLWWStore(0)
	store.ReceiveSet(nil, v(1, 1), "a", "A")
	store.ReceiveSet(nil, v(2, 1), "b", "B")

	store.ReceiveDelete(clock.NewContext(v(1, 1), v(2, 1)))

	if _, ok := store.Get("a"); ok {
		t.Error("Expected 'a' to be removed")
	}
	if _, ok := store.Get("b"); !ok {
		t.Error("Expected 'b' to survive: only the first version is honoured")
	}

	// empty context is a no-op
	store.ReceiveDelete(nil)
	if len(store.Entries()) != 1 {
		t.Errorf("Expected one entry, got %v", store.Entries())
	}
}

func TestStore_CloneIsIndependent(t *testing.T) {
	for _, variant := range []Variant{Safe, Unsafe} {
		t.Run(variant.String(), func(t *testing.T) {
			store := New(variant, 0)
			store.Set("k", "A")

			clone := store.Clone()
			clone.Set("k", "B")
			clone.Set("j", "C")

			if value, _ := store.Get("k"); value != "A" {
				t.Errorf("Modifying clone changed original: %q", value)
			}
			if len(store.Entries()) != 1 {
				t.Errorf("Modifying clone changed original entries: %v", store.Entries())
			}
			if store.Counter() != 1 || clone.Counter() != 3 {
				t.Errorf("Unexpected counters: original %d, clone %d", store.Counter(), clone.Counter())
			}
		})
	}
}

func TestUniqueKeys(t *testing.T) {
	if !UniqueKeys([]Entry{{Version: v(1, 0), Key: "a"}, {Version: v(2, 0), Key: "b"}}) {
		t.Error("Expected distinct keys to be unique")
	}
	if UniqueKeys([]Entry{{Version: v(1, 0), Key: "a"}, {Version: v(1, 1), Key: "a"}}) {
		t.Error("Expected duplicate key to be reported")
	}
}

func TestShadowed(t *testing.T) {
	entries := []Entry{
		{Version: v(1, 0), Key: "k", Value: "A"},
		{Version: v(1, 1), Key: "k", Value: "B"},
		{Version: v(2, 0), Key: "j", Value: "C"},
	}
	shadowed := Shadowed(entries)
	if len(shadowed) != 1 || shadowed[0].Value != "A" {
		t.Errorf("Expected only 'A' to be shadowed, got %v", shadowed)
	}
}
