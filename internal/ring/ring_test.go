package ring

import "testing"

func TestPushAndSlice(t *testing.T) {
	r := New[int](5)
	for i := 0; i < 3; i++ {
		if _, ok := r.Push(i); ok {
			t.Fatalf("unexpected eviction at %d", i)
		}
	}
	got := r.Slice()
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("Slice = %v", got)
	}
}

func TestOverwriteEvictsOldest(t *testing.T) {
	r := New[int](3)
	var evicted []int
	for i := 0; i < 5; i++ {
		if v, ok := r.Push(i); ok {
			evicted = append(evicted, v)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	got := r.Slice()
	if got[0] != 2 || got[1] != 3 || got[2] != 4 {
		t.Fatalf("Slice = %v, want [2 3 4]", got)
	}
	if len(evicted) != 2 || evicted[0] != 0 || evicted[1] != 1 {
		t.Fatalf("evicted = %v, want [0 1]", evicted)
	}
}

func TestTail(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 6; i++ {
		r.Push(i)
	}
	tests := []struct {
		n    int
		want []int
	}{
		{0, []int{2, 3, 4, 5}},
		{2, []int{4, 5}},
		{10, []int{2, 3, 4, 5}},
	}
	for _, tt := range tests {
		got := r.Tail(tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("Tail(%d) = %v, want %v", tt.n, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tail(%d) = %v, want %v", tt.n, got, tt.want)
				break
			}
		}
	}
}

func TestEachStops(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		r.Push(i)
	}
	seen := 0
	r.Each(func(v int) bool {
		seen++
		return v < 1
	})
	if seen != 2 {
		t.Errorf("seen = %d, want 2", seen)
	}
}
