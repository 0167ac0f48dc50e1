package fat

import "testing"

func TestSumSFNChecksumStable(t *testing.T) {
	a := []byte("LONGNA~1TXT")
	b := []byte("LONGNA~1TXT")
	if sum_sfn(a) != sum_sfn(b) {
		t.Fatalf("checksum of identical SFNs should match")
	}
	c := []byte("LONGNA~2TXT")
	if sum_sfn(a) == sum_sfn(c) {
		t.Fatalf("checksum of differing SFNs should (almost always) differ: got equal for %q and %q", a, c)
	}
}

func TestLFNFragmentRoundTrip(t *testing.T) {
	name := []uint16{'L', 'o', 'n', 'g', 'F', 'i', 'l', 'e', 'N', 'a', 'm', 'e'}
	sfn := []byte("LONGNA~1TXT")
	chk := sum_sfn(sfn)

	ent := make([]byte, 32)
	put_lfn(ent, name, 1|ldirLastLongEntry, chk)

	if ent[ldirAttrOff] != amLFN {
		t.Fatalf("LFN entry attribute = %#02x, want amLFN", ent[ldirAttrOff])
	}
	if ent[ldirChksumOff] != chk {
		t.Fatalf("LFN checksum = %#02x, want %#02x", ent[ldirChksumOff], chk)
	}

	var got [lfnBufSize + 1]uint16
	pick_lfn(got[:], ent)
	n := lfnLength(got[:])
	if n != len(name) {
		t.Fatalf("reconstructed length = %d, want %d", n, len(name))
	}
	for i := range name {
		if got[i] != name[i] {
			t.Fatalf("char %d = %q, want %q", i, got[i], name[i])
		}
	}
}

func TestLFNFragmentSpansTwoEntries(t *testing.T) {
	// 20 UTF-16 units needs two 13-char fragments.
	var name []uint16
	for i := 0; i < 20; i++ {
		name = append(name, uint16('a'+i%26))
	}
	sfn := []byte("LONGNA~1TXT")
	chk := sum_sfn(sfn)

	ent1 := make([]byte, 32) // First fragment on disk: ordinal 2, LAST flag set.
	put_lfn(ent1, name, 2|ldirLastLongEntry, chk)
	ent2 := make([]byte, 32) // Second fragment on disk: ordinal 1.
	put_lfn(ent2, name, 1, chk)

	var got [lfnBufSize + 1]uint16
	pick_lfn(got[:], ent1)
	pick_lfn(got[:], ent2)

	n := lfnLength(got[:])
	if n != len(name) {
		t.Fatalf("reconstructed length = %d, want %d", n, len(name))
	}
	for i := range name {
		if got[i] != name[i] {
			t.Fatalf("char %d = %q, want %q", i, got[i], name[i])
		}
	}
}

func TestGenNumnameSequentialTail(t *testing.T) {
	base := []byte("LONGNAMETXT") // body "LONGNAME", ext "TXT", no dot stored on disk.
	lfn := []uint16{'L', 'o', 'n', 'g', 'N', 'a', 'm', 'e', '.', 't', 'x', 't'}

	cases := []struct {
		seq  int
		want string
	}{
		{1, "LONGNA~1TXT"},
		{2, "LONGNA~2TXT"},
		{3, "LONGNA~3TXT"},
	}
	for _, tc := range cases {
		sfn := make([]byte, 11)
		gen_numname(sfn, base, lfn, tc.seq)
		if string(sfn) != tc.want {
			t.Errorf("gen_numname(seq=%d) = %q, want %q", tc.seq, sfn, tc.want)
		}
	}
}

func TestGenNumnameHashTailForHighSequence(t *testing.T) {
	base := []byte("LONGNAMETXT")
	lfn := []uint16{'L', 'o', 'n', 'g', 'N', 'a', 'm', 'e', '.', 't', 'x', 't'}
	sfn := make([]byte, 11)
	gen_numname(sfn, base, lfn, 6)
	if sfn[8] != 'T' || sfn[9] != 'X' || sfn[10] != 'T' {
		t.Fatalf("extension should be untouched by the numbered tail, got %q", sfn)
	}
	tail := string(sfn[:8])
	if tail[0] != '~' && tail[len(tail)-5] != '~' {
		// Body is 8 chars wide, so the '~' lands somewhere before the 4 hex digits.
		found := false
		for _, c := range tail {
			if c == '~' {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected a '~' in the hashed numbered tail, got %q", tail)
		}
	}
}
