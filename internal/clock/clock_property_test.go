package clock

import (
	"testing"
)

func sampleVersions() []Version {
	var vs []Version
	for c := uint64(0); c < 4; c++ {
		for r := 0; r < 3; r++ {
			vs = append(vs, Version{Counter: c, Replica: r})
		}
	}
	return vs
}

// TestVersion_Property_TotalOrder tests that Compare is a strict total order
func TestVersion_Property_TotalOrder(t *testing.T) {
	vs := sampleVersions()
	for _, a := range vs {
		for _, b := range vs {
			ab := a.Compare(b)
			ba := b.Compare(a)
			if ab != -ba {
				t.Errorf("Compare not antisymmetric for %s, %s: %d vs %d", a, b, ab, ba)
			}
			if (ab == 0) != (a == b) {
				t.Errorf("Compare(%s, %s)=0 must hold iff the versions are equal", a, b)
			}
			for _, c := range vs {
				if a.Less(b) && b.Less(c) && !a.Less(c) {
					t.Errorf("Transitivity: %s < %s < %s but not %s < %s", a, b, c, a, c)
				}
			}
		}
	}
}

// TestVersion_Property_DistinctReplicasNeverCollide tests global uniqueness of issued versions
func TestVersion_Property_DistinctReplicasNeverCollide(t *testing.T) {
	var l0, l1 Lamport
	seen := make(map[Version]bool)
	for i := 0; i < 50; i++ {
		v0 := l0.Next(0)
		v1 := l1.Next(1)
		if seen[v0] || seen[v1] {
			t.Fatalf("Version issued twice: %s / %s", v0, v1)
		}
		seen[v0] = true
		seen[v1] = true
		if i%3 == 0 {
			l0.Observe(v1)
		}
	}
}

// TestContext_Property_UnionIsCommutative tests that union order does not matter
func TestContext_Property_UnionIsCommutative(t *testing.T) {
	a := NewContext(Version{Counter: 1, Replica: 0}, Version{Counter: 3, Replica: 1})
	b := NewContext(Version{Counter: 2, Replica: 0}, Version{Counter: 3, Replica: 1})

	ab := a.Copy().Union(b)
	ba := b.Copy().Union(a)

	if !ab.Equal(ba) {
		t.Errorf("Union should be commutative: %s vs %s", ab, ba)
	}
	if ab.Len() != 3 {
		t.Errorf("Expected 3 distinct members, got %d", ab.Len())
	}
}

// TestContext_Property_UnionIsIdempotent tests that union with self doesn't change
func TestContext_Property_UnionIsIdempotent(t *testing.T) {
	c := NewContext(Version{Counter: 1, Replica: 0}, Version{Counter: 2, Replica: 1})
	original := c.Copy()
	c = c.Union(original)

	if !c.Equal(original) {
		t.Error("Union of context with itself should not change it")
	}
}
