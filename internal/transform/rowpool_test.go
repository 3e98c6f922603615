package transform

import "testing"

// A freed row goes straight back to the pool, so any state read after Free
// may already belong to the next caller. GetRow must hand out rows with Line
// and values cleared no matter how dirty the freed row was.
func TestGetRowAfterFreeIsZeroed(t *testing.T) {
	r := GetRow(2)
	r.V[0] = "S1"
	r.V[1] = 3.5
	r.Line = 42
	r.Free()

	got := GetRow(3)
	if got.Line != 0 {
		t.Errorf("Line = %d, want 0", got.Line)
	}
	if len(got.V) != 3 {
		t.Fatalf("len(V) = %d, want 3", len(got.V))
	}
	for i, v := range got.V {
		if v != nil {
			t.Errorf("V[%d] = %v, want nil", i, v)
		}
	}
	got.Free()
}

func TestDropClearsRow(t *testing.T) {
	r := GetRow(1)
	r.V[0] = "x"
	r.Line = 7
	r.Drop()
	if r.V != nil || r.Line != 0 {
		t.Errorf("dropped row not cleared: V=%v Line=%d", r.V, r.Line)
	}
}
