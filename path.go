package fat

import "unicode/utf8"

// follow_path resolves path, a slash-or-backslash separated name. A path
// starting with a separator is resolved from the volume root; otherwise
// it is resolved relative to fsys.cdir (the root, until Chdir moves it).
// It walks one path segment at a time; on success dp is left positioned
// on the final segment's directory entry (or, if path is empty, on a
// synthetic NS_NONAME entry denoting that starting directory itself).
func (dp *dir) follow_path(path string) fileResult {
	fsys := dp.obj.fs
	absolute := len(path) > 0 && isSep(path[0])
	path = trimSeparatorPrefix(path)
	if absolute {
		dp.obj.sclust = 0
	} else {
		dp.obj.sclust = fsys.cdir
	}

	if path == "" {
		dp.fn[nsFLAG] = nsNONAME
		return dp.sdi(0)
	}

	for {
		var fr fileResult
		path, fr = dp.create_name(path)
		if fr != frOK {
			return fr
		}
		fr = dp.dir_find()
		last := dp.fn[nsFLAG]&nsLAST != 0
		if fr != frOK {
			if fr == frNoFile && !last {
				return frNoPath
			}
			return fr
		}
		if last {
			return frOK
		}
		// Must be a directory to keep descending.
		attr := fsys.win[dp.ofs+dirAttrOff]
		if attr&amDIR == 0 {
			return frNoPath
		}
		dp.obj.sclust = dp.start_cluster()
		path = trimSeparatorPrefix(path)
	}
}

// start_cluster reads the first cluster number out of the SFN entry dp
// currently points at.
func (dp *dir) start_cluster() uint32 {
	fsys := dp.obj.fs
	hi := uint32(fsys.window_u16(uint16(dp.ofs) + dirFstClusHIOff))
	lo := uint32(fsys.window_u16(uint16(dp.ofs) + dirFstClusLOOff))
	return hi<<16 | lo
}

// dir_find scans dp's directory, starting from its first entry, for one
// matching dp.fn (and, if NS_LFN is set, the long name in fsys.lfnbuf).
func (dp *dir) dir_find() fileResult {
	fsys := dp.obj.fs
	fr := dp.sdi(0)
	if fr != frOK {
		return fr
	}
	ord, sum := byte(0xFF), byte(0xFF)
	for {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		ent := dp.window_dirent()
		b := ent[0]
		if b == 0 {
			return frNoFile
		}
		attr := ent[dirAttrOff] & amMASK
		if b == 0xE5 || (attr == amVOL) {
			ord = 0xFF
		} else if attr == amLFN {
			if dp.fn[nsFLAG]&nsLFN != 0 {
				if ent[ldirOrdOff]&ldirLastLongEntry != 0 {
					sum = ent[ldirChksumOff]
					clear(fsys.lfnCmpBuf[:])
					pickFragmentInto(fsys.lfnCmpBuf[:], ent)
					ord = ent[ldirOrdOff]&^ldirLastLongEntry - 1 // Ordinal the next fragment must carry; 0 once all are read.
				} else if ord != 0xFF && ord != 0 && ent[ldirOrdOff] == ord && ent[ldirChksumOff] == sum {
					pickFragmentInto(fsys.lfnCmpBuf[:], ent)
					ord--
				} else {
					ord = 0xFF
				}
			}
		} else {
			if ord == 0 && sum == sum_sfn(ent[0:11]) && lfnEquals(fsys.lfnCmpBuf[:], fsys.lfnbuf[:]) {
				return frOK
			}
			if sfnEquals(ent[0:11], dp.fn[0:11]) {
				return frOK
			}
			ord = 0xFF
		}
		fr = dp.dir_next(false)
		if fr != frOK {
			return fr
		}
	}
}

func pickFragmentInto(dst []uint16, ent []byte) {
	pick_lfn(dst, ent)
}

func lfnEquals(a, b []uint16) bool {
	na, nb := lfnLength(a), lfnLength(b)
	if na != nb {
		return false
	}
	for i := 0; i < na; i++ {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func sfnEquals(a, b []byte) bool {
	for i := 0; i < 11; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// create_name consumes one path segment from path (up to the next
// separator or end of string), builds its 8.3 form into dp.fn[0:11] with
// status flags in dp.fn[nsFLAG], and, if the segment cannot be
// represented exactly in 8.3, populates fsys.lfnbuf with its UTF-16 form
// and sets NS_LFN. It returns the remainder of path after the consumed
// segment.
func (dp *dir) create_name(path string) (string, fileResult) {
	fsys := dp.obj.fs

	end := len(path)
	for i := 0; i < len(path); i++ {
		if isSep(path[i]) {
			end = i
			break
		}
	}
	seg := path[:end]
	rest := path[end:]

	seg = trimChar(seg, ' ')
	for len(seg) > 0 && seg[len(seg)-1] == ' ' {
		seg = seg[:len(seg)-1]
	}
	trimmed := seg
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '.' && !isDotEntry(trimmed) {
		trimmed = trimmed[:len(trimmed)-1]
	}

	if trimmed == "" {
		return rest, frInvalidName
	}

	var status byte
	if rest == "" {
		status |= nsLAST
	}

	if trimmed == "." || trimmed == ".." {
		clear(dp.fn[:11])
		for i := 0; i < len(trimmed); i++ {
			dp.fn[i] = '.'
		}
		for i := len(trimmed); i < 11; i++ {
			dp.fn[i] = ' '
		}
		dp.fn[nsFLAG] = status | nsDOT
		return rest, frOK
	}

	lfn := fsys.lfnbuf[:0]
	fitsSFN := true
	dotIdx := -1
	for i, r := range trimmed {
		if r == '.' {
			dotIdx = i
		}
	}
	body, ext := trimmed, ""
	if dotIdx >= 0 {
		body, ext = trimmed[:dotIdx], trimmed[dotIdx+1:]
	}
	if len(body) == 0 || len(body) > 8 || len(ext) > 3 || containsInvalidSFNChar(body) || containsInvalidSFNChar(ext) ||
		hasCaseMix(body) || hasCaseMix(ext) {
		fitsSFN = false
	}

	for _, r := range trimmed {
		if r == utf8.RuneError {
			return rest, frInvalidName
		}
		if len(lfn)+2 >= len(fsys.lfnbuf) {
			return rest, frInvalidName
		}
		if r > 0xFFFF {
			// Outside the BMP: store as a surrogate pair.
			r -= 0x10000
			lfn = append(lfn, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		} else {
			lfn = append(lfn, uint16(r))
		}
	}
	fsys.lfnbuf[len(lfn)] = 0

	clear(dp.fn[:11])
	for i := range dp.fn[:11] {
		dp.fn[i] = ' '
	}

	if fitsSFN {
		upperBody, lowerBody := caseFoldSFN(fsys.codepage, body)
		upperExt, lowerExt := caseFoldSFN(fsys.codepage, ext)
		copy(dp.fn[0:8], padSpace(upperBody, 8))
		copy(dp.fn[8:11], padSpace(upperExt, 3))
		if lowerBody {
			status |= nsBODY
		}
		if lowerExt {
			status |= nsEXT
		}
		if !sfnRoundTrips(dp.fn[:11], body, ext) {
			fitsSFN = false
		}
	}
	if !fitsSFN {
		status |= nsLOSS | nsLFN
		synthesizeShortFromLong(dp.fn[:11], body, ext)
		fr := dp.assignNumberedTail(lfn)
		if fr != frOK {
			return rest, fr
		}
	}
	dp.fn[nsFLAG] = status
	return rest, frOK
}

// assignNumberedTail appends a "~N" (or, past N=5, a hashed "~XXXX") tail
// to the truncated 8.3 body already sitting in dp.fn[0:11], probing dp's
// directory for a collision on every candidate and retrying with the next
// N until one is free. Gives up after 100 attempts.
func (dp *dir) assignNumberedTail(lfn []uint16) fileResult {
	base := make([]byte, 11)
	copy(base, dp.fn[:11])
	for seq := 1; seq <= 100; seq++ {
		gen_numname(dp.fn[:11], base, lfn, seq)
		collides, fr := dp.sfnCollides(dp.fn[:11])
		if fr != frOK {
			return fr
		}
		if !collides {
			return frOK
		}
	}
	return frDenied
}

// sfnCollides reports whether dp's directory already holds a live
// (non-deleted, non-LFN, non-volume-label) entry whose 11-byte name
// equals sfn, without disturbing dp's own current position.
func (dp *dir) sfnCollides(sfn []byte) (bool, fileResult) {
	fsys := dp.obj.fs
	probe := dir{obj: dp.obj}
	if fr := probe.sdi(0); fr != frOK {
		return false, fr
	}
	for {
		fr := fsys.move_window(probe.sect)
		if fr != frOK {
			return false, fr
		}
		ent := probe.window_dirent()
		b := ent[0]
		if b == 0 {
			return false, frOK
		}
		attr := ent[dirAttrOff] & amMASK
		if b != 0xE5 && attr != amLFN && attr&amVOL == 0 && sfnEquals(ent[0:11], sfn) {
			return true, frOK
		}
		fr = probe.dir_next(false)
		if fr == frNoFile {
			return false, frOK
		}
		if fr != frOK {
			return false, fr
		}
	}
}

// hasCaseMix reports whether s contains both an upper- and a lower-case
// ASCII letter, which forces the LFN path per the 8.3 name-creation rules
// even when s would otherwise fit the SFN length and character set.
func hasCaseMix(s string) bool {
	hasUpper, hasLower := false, false
	for i := 0; i < len(s); i++ {
		if isUpper(s[i]) {
			hasUpper = true
		} else if isLower(s[i]) {
			hasLower = true
		}
		if hasUpper && hasLower {
			return true
		}
	}
	return false
}

func isDotEntry(s string) bool {
	return s == "." || s == ".."
}

func containsInvalidSFNChar(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c < 0x20:
			return true
		case c == ' ', c == '.':
			return true // Embedded space or dot in the name body forces the LFN path.
		case c == '"', c == '*', c == '+', c == ',', c == '/', c == ':', c == ';',
			c == '<', c == '=', c == '>', c == '?', c == '[', c == '\\', c == ']', c == '|':
			return true
		case c >= 0x80:
			return true // Non-ASCII forces the LFN path; the OEM mapping happens only for already-fitting bytes.
		}
	}
	return false
}

// caseFoldSFN reports whether s is representable as a single 8.3 case
// (all upper, or all lower and thus eligible for the NT lowercase trick),
// and returns its uppercased form for storage.
func caseFoldSFN(cp Codepage, s string) (upper string, allLower bool) {
	if s == "" {
		return "", false
	}
	hasUpper, hasLower := false, false
	buf := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isLower(c) {
			hasLower = true
			buf[i] = c - ('a' - 'A')
		} else {
			if isUpper(c) {
				hasUpper = true
			}
			buf[i] = c
		}
	}
	return string(buf), hasLower && !hasUpper
}

func padSpace(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

func sfnRoundTrips(fn []byte, body, ext string) bool {
	return len(body) <= 8 && len(ext) <= 3
}

// synthesizeShortFromLong builds a placeholder 8.3 name from a segment
// that needs an LFN: body's first up-to-8 valid SFN characters become
// fn[0:8], ext's first up-to-3 become fn[8:11], both uppercased and with
// any character the SFN charset forbids (including embedded space/dot)
// squashed to '_'. create_name's caller, assignNumberedTail, appends the
// numbered tail onto the body once a collision (or a forced LFN) is
// confirmed.
func synthesizeShortFromLong(fn []byte, body, ext string) {
	squash(fn[0:8], body)
	squash(fn[8:11], ext)
}

func squash(dst []byte, src string) {
	j := 0
	for i := 0; i < len(src) && j < len(dst); i++ {
		c := src[i]
		if c == '.' || c == ' ' {
			continue
		}
		if isLower(c) {
			c -= 'a' - 'A'
		}
		if c < 0x20 || c >= 0x7F {
			c = '_'
		}
		dst[j] = c
		j++
	}
	for ; j < len(dst); j++ {
		dst[j] = ' '
	}
}
