package sampling

import "testing"

func TestGenerator_OffsetsWithinBound(t *testing.T) {
	var blockhash [32]byte
	for i := range blockhash {
		blockhash[i] = byte(i * 7)
	}

	g, err := NewGenerator(blockhash)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	const bound = 1024
	offsets, err := g.Offsets(4, bound)
	if err != nil {
		t.Fatalf("Offsets: %v", err)
	}
	if len(offsets) != 4 {
		t.Fatalf("len(offsets) = %d, want 4", len(offsets))
	}
	for _, o := range offsets {
		if o >= bound {
			t.Fatalf("offset %d out of bound %d", o, bound)
		}
	}
}

func TestGenerator_ReseedChangesOffsets(t *testing.T) {
	var a, b [32]byte
	a[0] = 1
	b[0] = 2

	ga, _ := NewGenerator(a)
	gb, _ := NewGenerator(b)

	oa, err := ga.Offsets(4, 1<<40)
	if err != nil {
		t.Fatalf("Offsets: %v", err)
	}
	ob, err := gb.Offsets(4, 1<<40)
	if err != nil {
		t.Fatalf("Offsets: %v", err)
	}

	same := true
	for i := range oa {
		if oa[i] != ob[i] {
			same = false
		}
	}
	if same {
		t.Fatal("offsets identical across distinct blockhashes")
	}
}

func TestGenerator_DeterministicForSameBlockhash(t *testing.T) {
	var blockhash [32]byte
	blockhash[3] = 42

	g1, _ := NewGenerator(blockhash)
	g2, _ := NewGenerator(blockhash)

	o1, _ := g1.Offsets(4, 1<<30)
	o2, _ := g2.Offsets(4, 1<<30)

	for i := range o1 {
		if o1[i] != o2[i] {
			t.Fatalf("offset[%d] diverged: %d != %d", i, o1[i], o2[i])
		}
	}
}

func TestGenerator_RejectsZeroBound(t *testing.T) {
	var blockhash [32]byte
	g, _ := NewGenerator(blockhash)

	if _, err := g.Offsets(1, 0); err == nil {
		t.Fatal("Offsets(_, 0) succeeded, want error")
	}
}
