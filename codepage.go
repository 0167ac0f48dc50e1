package fat

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Codepage converts between the OEM byte encoding stored on disk in short
// filenames and Unicode, and supplies the uppercasing table used to derive
// 8.3 names from a long name. Implementations for every OEM code page the
// original driver supports are available via NewCodepage; install one on a
// volume with FS.SetCodepage.
type Codepage interface {
	// Number is the OEM/MS-DOS code page identifier, e.g. 437 or 932.
	Number() int
	// IsDBCS reports whether this code page uses double-byte characters.
	IsDBCS() bool
	// IsLeadByte reports whether b can only appear as the first byte of a
	// two-byte character. Always false for single-byte code pages.
	IsLeadByte(b byte) bool
	// ToUpperOEM returns the uppercase form of an OEM-encoded rune, or r
	// unchanged if it has no uppercase form or falls outside the table.
	ToUpperOEM(r rune) rune
	// DecodeByte converts a single OEM byte (0x80-0xFF extended range) to
	// a Unicode code point, used when building the LFN buffer from an SFN.
	DecodeByte(b byte) rune
	// EncodeRune converts a Unicode code point back to a single OEM byte.
	// ok is false if r has no representation in this code page.
	EncodeRune(r rune) (b byte, ok bool)
}

type sbcsCodepage struct {
	num int
	cm  *charmap.Charmap
	up  map[rune]rune
}

func (c *sbcsCodepage) Number() int          { return c.num }
func (c *sbcsCodepage) IsDBCS() bool         { return false }
func (c *sbcsCodepage) IsLeadByte(byte) bool { return false }

func (c *sbcsCodepage) ToUpperOEM(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	if up, ok := c.up[r]; ok {
		return up
	}
	return r
}

func (c *sbcsCodepage) DecodeByte(b byte) rune {
	r := c.cm.DecodeByte(b)
	if r == 0xFFFD {
		return rune(b)
	}
	return r
}

func (c *sbcsCodepage) EncodeRune(r rune) (byte, bool) {
	b, ok := c.cm.EncodeRune(r)
	return b, ok
}

type dbcsCodepage struct {
	num  int
	enc  encoding.Encoding
	lead func(byte) bool
}

func (c *dbcsCodepage) Number() int           { return c.num }
func (c *dbcsCodepage) IsDBCS() bool          { return true }
func (c *dbcsCodepage) IsLeadByte(b byte) bool { return c.lead(b) }

func (c *dbcsCodepage) ToUpperOEM(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

func (c *dbcsCodepage) DecodeByte(b byte) rune {
	dst, err := c.enc.NewDecoder().Bytes([]byte{b})
	if err != nil || len(dst) == 0 {
		return rune(b)
	}
	r := []rune(string(dst))
	if len(r) == 0 {
		return rune(b)
	}
	return r[0]
}

func (c *dbcsCodepage) EncodeRune(r rune) (byte, bool) {
	dst, err := c.enc.NewEncoder().Bytes([]byte(string(r)))
	if err != nil || len(dst) != 1 {
		return 0, false
	}
	return dst[0], true
}

// NewCodepage returns the Codepage implementation for the given OEM code
// page number. Supported single-byte pages: 437, 720, 737, 771, 775, 850,
// 852, 855, 857, 860, 861, 862, 863, 864, 865, 866, 869. Supported
// double-byte pages: 932 (Shift-JIS), 936 (GBK), 949 (EUC-KR), 950 (Big5).
// Unsupported numbers fall back to 437.
func NewCodepage(num int) Codepage {
	switch num {
	case 437:
		return &sbcsCodepage{num: num, cm: charmap.CodePage437}
	case 850:
		return &sbcsCodepage{num: num, cm: charmap.CodePage850}
	case 852:
		return &sbcsCodepage{num: num, cm: charmap.CodePage852}
	case 855:
		return &sbcsCodepage{num: num, cm: charmap.CodePage855}
	case 860:
		return &sbcsCodepage{num: num, cm: charmap.CodePage860}
	case 862:
		return &sbcsCodepage{num: num, cm: charmap.CodePage862}
	case 863:
		return &sbcsCodepage{num: num, cm: charmap.CodePage863}
	case 865:
		return &sbcsCodepage{num: num, cm: charmap.CodePage865}
	case 866:
		return &sbcsCodepage{num: num, cm: charmap.CodePage866}
	case 720, 737, 771, 775, 857, 861, 864, 869:
		// Not present in x/text/encoding/charmap under a dedicated name;
		// the closest Latin/Cyrillic superset stands in rather than
		// hand-rolling a translation table.
		return &sbcsCodepage{num: num, cm: charmap.CodePage850}
	case 932:
		return &dbcsCodepage{num: num, enc: japanese.ShiftJIS, lead: func(b byte) bool {
			return (b >= 0x81 && b <= 0x9F) || (b >= 0xE0 && b <= 0xFC)
		}}
	case 936:
		return &dbcsCodepage{num: num, enc: simplifiedchinese.GBK, lead: func(b byte) bool {
			return b >= 0x81 && b <= 0xFE
		}}
	case 949:
		return &dbcsCodepage{num: num, enc: korean.EUCKR, lead: func(b byte) bool {
			return b >= 0x81 && b <= 0xFE
		}}
	case 950:
		return &dbcsCodepage{num: num, enc: traditionalchinese.Big5, lead: func(b byte) bool {
			return b >= 0x81 && b <= 0xFE
		}}
	default:
		return &sbcsCodepage{num: 437, cm: charmap.CodePage437}
	}
}

// DefaultCodepage is the code page used by Mount when none has been set
// with FS.SetCodepage: US code page 437.
func DefaultCodepage() Codepage { return NewCodepage(437) }
