package fat

import "testing"

func TestDefaultCodepageIs437(t *testing.T) {
	cp := DefaultCodepage()
	if cp.Number() != 437 {
		t.Fatalf("DefaultCodepage().Number() = %d, want 437", cp.Number())
	}
	if cp.IsDBCS() {
		t.Fatalf("codepage 437 must not be DBCS")
	}
}

func TestSBCSUpperOEM(t *testing.T) {
	cp := NewCodepage(437)
	if got := cp.ToUpperOEM('a'); got != 'A' {
		t.Fatalf("ToUpperOEM('a') = %q, want 'A'", got)
	}
	if got := cp.ToUpperOEM('Z'); got != 'Z' {
		t.Fatalf("ToUpperOEM('Z') = %q, want 'Z'", got)
	}
}

func TestSBCSFallbackCodepages(t *testing.T) {
	for _, num := range []int{720, 737, 771, 775, 857, 861, 864, 869} {
		cp := NewCodepage(num)
		if cp.Number() != num {
			t.Fatalf("NewCodepage(%d).Number() = %d", num, cp.Number())
		}
		if cp.IsDBCS() {
			t.Fatalf("codepage %d should fall back to an SBCS table", num)
		}
	}
}

func TestDBCSCodepagesAreLeadByteAware(t *testing.T) {
	cases := map[int]byte{932: 0x81, 936: 0x81, 949: 0x81, 950: 0x81}
	for num, lead := range cases {
		cp := NewCodepage(num)
		if !cp.IsDBCS() {
			t.Fatalf("codepage %d should be DBCS", num)
		}
		if !cp.IsLeadByte(lead) {
			t.Fatalf("codepage %d: byte %#02x should be a lead byte", num, lead)
		}
		if cp.IsLeadByte(0x41) {
			t.Fatalf("codepage %d: ASCII byte should not be a lead byte", num)
		}
	}
}

func TestUnknownCodepageFallsBackTo437(t *testing.T) {
	cp := NewCodepage(12345)
	if cp.Number() != 437 {
		t.Fatalf("unsupported codepage should fall back to 437, got %d", cp.Number())
	}
}
