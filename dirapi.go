package fat

import "encoding/binary"

// f_opendir resolves path to a directory and positions dp at its first
// entry, ready for f_readdir.
func (fsys *FS) f_opendir(dp *dir, path string) fileResult {
	dp.obj.fs = fsys
	dp.obj.id = fsys.id
	fr := dp.follow_path(path)
	if fr != frOK {
		return fr
	}
	if dp.fn[nsFLAG]&nsNONAME == 0 {
		if fsys.win[dp.ofs+dirAttrOff]&amDIR == 0 {
			return frNoDir
		}
		dp.obj.sclust = dp.start_cluster()
	}
	return dp.sdi(0)
}

// f_readdir fills fi with the next entry in dp's directory, assembling
// the long name from any preceding LFN fragments. An empty fi with an
// fsize of -1 signals the end of the directory without an error.
func (dp *dir) f_readdir(fi *FileInfo) fileResult {
	fsys := dp.obj.fs
	*fi = FileInfo{}
	if dp.sect == 0 {
		fi.fsize = -1 // The previous call returned the directory's last entry.
		return frOK
	}
	var lfn [lfnBufSize + 1]uint16
	ord, sum := byte(0xFF), byte(0xFF)
	for {
		fr := fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		ent := dp.window_dirent()
		b := ent[0]
		if b == 0 {
			fi.fsize = -1
			return frOK
		}
		attr := ent[dirAttrOff] & amMASK
		if b != 0xE5 && b != '.' && attr != amVOL {
			if attr == amLFN {
				if ent[ldirOrdOff]&ldirLastLongEntry != 0 {
					sum = ent[ldirChksumOff]
					pick_lfn(lfn[:], ent)
					ord = ent[ldirOrdOff] &^ ldirLastLongEntry
				} else if ord != 0xFF && ent[ldirOrdOff] == ord-1 {
					pick_lfn(lfn[:], ent)
					ord--
				} else {
					ord = 0xFF
				}
			} else {
				fi.fattrib = attr
				fi.fsize = int64(binary.LittleEndian.Uint32(ent[dirFileSizeOff:]))
				fi.fdate = binary.LittleEndian.Uint16(ent[dirWrtDateOff:])
				fi.ftime = binary.LittleEndian.Uint16(ent[dirModTimeOff:])
				copy(fi.altname[:], sfnToDisplay(ent[0:11]))
				if ord == 0 && sum == sum_sfn(ent[0:11]) {
					n := copyUTF16ToUTF8(fi.fname[:], lfn[:lfnLength(lfn[:])])
					_ = n
				} else {
					copy(fi.fname[:], fi.altname[:])
				}
				if dp.dir_next(false) != frOK {
					dp.sect = 0 // Out of entries after this one; caller calls again and gets fsize==-1.
				}
				return frOK
			}
		} else {
			ord = 0xFF
		}
		fr = dp.dir_next(false)
		if fr != frOK {
			if fr == frNoFile {
				fi.fsize = -1
				return frOK
			}
			return fr
		}
	}
}

func copyUTF16ToUTF8(dst []byte, src []uint16) int {
	n := 0
	for i := 0; i < len(src); i++ {
		c := rune(src[i])
		if isSurrogateH(src[i]) && i+1 < len(src) && isSurrogateL(src[i+1]) {
			c = 0x10000 + (rune(src[i])-0xD800)<<10 + (rune(src[i+1]) - 0xDC00)
			i++
		}
		n += encodeRuneUTF8(dst[n:], c)
	}
	if n < len(dst) {
		dst[n] = 0
	}
	return n
}

func encodeRuneUTF8(dst []byte, r rune) int {
	switch {
	case r < 0x80:
		if len(dst) < 1 {
			return 0
		}
		dst[0] = byte(r)
		return 1
	case r < 0x800:
		if len(dst) < 2 {
			return 0
		}
		dst[0] = byte(0xC0 | r>>6)
		dst[1] = byte(0x80 | r&0x3F)
		return 2
	case r < 0x10000:
		if len(dst) < 3 {
			return 0
		}
		dst[0] = byte(0xE0 | r>>12)
		dst[1] = byte(0x80 | (r>>6)&0x3F)
		dst[2] = byte(0x80 | r&0x3F)
		return 3
	default:
		if len(dst) < 4 {
			return 0
		}
		dst[0] = byte(0xF0 | r>>18)
		dst[1] = byte(0x80 | (r>>12)&0x3F)
		dst[2] = byte(0x80 | (r>>6)&0x3F)
		dst[3] = byte(0x80 | r&0x3F)
		return 4
	}
}

// sfnToDisplay renders an 11-byte on-disk SFN as "NAME.EXT", trimming
// padding spaces and omitting the dot when there is no extension.
func sfnToDisplay(sfn []byte) string {
	body := trimTrailingSpace(sfn[0:8])
	ext := trimTrailingSpace(sfn[8:11])
	if ext == "" {
		return body
	}
	return body + "." + ext
}

func trimTrailingSpace(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == ' ' {
		n--
	}
	return string(b[:n])
}

// matchPattern reports whether name matches the glob pattern (case
// folded on ASCII letters, mirroring the SFN comparison rules), where
// '*' matches any run of characters and '?' matches exactly one.
func matchPattern(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	return globMatch(pattern, name)
}

func globMatch(pat, s string) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case '*':
			for len(pat) > 1 && pat[1] == '*' {
				pat = pat[1:]
			}
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatch(pat[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pat, s = pat[1:], s[1:]
		default:
			if len(s) == 0 || foldByte(pat[0]) != foldByte(s[0]) {
				return false
			}
			pat, s = pat[1:], s[1:]
		}
	}
	return len(s) == 0
}

func foldByte(c byte) byte {
	if isUpper(c) {
		return c - 'A' + 'a'
	}
	return c
}

// f_mkdir creates a new, empty subdirectory at path.
func (fsys *FS) f_mkdir(path string) fileResult {
	var dp dir
	dp.obj.fs = fsys
	fr := dp.follow_path(path)
	if fr == frOK {
		return frExist
	}
	if fr != frNoFile {
		return fr
	}
	fr = dp.dir_register()
	if fr != frOK {
		return fr
	}
	parentSect, parentOfs := dp.sect, dp.ofs

	obj := objid{fs: fsys}
	clust, fr := obj.create_chain(0)
	if fr != frOK {
		return fr
	}
	if fr = (&dir{obj: objid{fs: fsys, sclust: clust}}).clear_cluster(clust); fr != frOK {
		return fr
	}

	// "." and ".." entries.
	var sub dir
	sub.obj = objid{fs: fsys, sclust: clust}
	if fr = sub.sdi(0); fr != frOK {
		return fr
	}
	if fr = fsys.move_window(sub.sect); fr != frOK {
		return fr
	}
	writeDotEntry(fsys.win[sub.ofs:sub.ofs+sizeDirEntry], ".", clust, fsys)
	if fr = sub.dir_next(false); fr != frOK {
		return fr
	}
	if fr = fsys.move_window(sub.sect); fr != frOK {
		return fr
	}
	parentClust := dp.obj.sclust
	writeDotEntry(fsys.win[sub.ofs:sub.ofs+sizeDirEntry], "..", parentClust, fsys)
	fsys.wflag = 1

	return fsys.update_dirent_size_start_attr(parentSect, parentOfs, 0, clust, amDIR)
}

func writeDotEntry(ent []byte, name string, clust uint32, fsys *FS) {
	clear(ent)
	for i := range ent[0:11] {
		ent[i] = ' '
	}
	copy(ent[0:len(name)], name)
	ent[dirAttrOff] = amDIR
	binary.LittleEndian.PutUint16(ent[dirFstClusLOOff:], uint16(clust))
	binary.LittleEndian.PutUint16(ent[dirFstClusHIOff:], uint16(clust>>16))
	fdate, ftime := fatTimestamp(fsys.clock.Now())
	binary.LittleEndian.PutUint16(ent[dirCrtDateOff:], fdate)
	binary.LittleEndian.PutUint16(ent[dirCrtTimeOff:], ftime)
	binary.LittleEndian.PutUint16(ent[dirWrtDateOff:], fdate)
	binary.LittleEndian.PutUint16(ent[dirModTimeOff:], ftime)
}

func (fsys *FS) update_dirent_size_start_attr(sect lba, ofs uint16, size int64, start uint32, attr byte) fileResult {
	fr := fsys.move_window(sect)
	if fr != frOK {
		return fr
	}
	fsys.win[ofs+dirAttrOff] = attr
	binary.LittleEndian.PutUint32(fsys.win[ofs+dirFileSizeOff:], uint32(size))
	binary.LittleEndian.PutUint16(fsys.win[ofs+dirFstClusLOOff:], uint16(start))
	binary.LittleEndian.PutUint16(fsys.win[ofs+dirFstClusHIOff:], uint16(start>>16))
	fsys.wflag = 1
	return frOK
}

// f_unlink removes the file or empty directory at path.
func (fsys *FS) f_unlink(path string) fileResult {
	var dp dir
	dp.obj.fs = fsys
	fr := dp.follow_path(path)
	if fr != frOK {
		return fr
	}
	if dp.fn[nsFLAG]&(nsDOT|nsNONAME) != 0 {
		return frInvalidName
	}
	attr := fsys.win[dp.ofs+dirAttrOff]
	sclust := dp.start_cluster()
	dirClust, dirOfsKey := dp.obj.sclust, lockKeyOfs(dp.sect, dp.ofs)
	if fsys.registry.isShared(dirClust, dirOfsKey) {
		return frLocked
	}
	if attr&amDIR != 0 {
		var sub dir
		sub.obj = objid{fs: fsys, sclust: sclust}
		if fr = sub.sdi(2 * sizeDirEntry); fr != frOK {
			return fr
		}
		if fr = sub.dir_read(false); fr != frNoFile {
			return frNoEmptyDir
		}
	}
	if sclust != 0 {
		obj := objid{fs: fsys}
		if fr = obj.remove_chain(sclust, 0); fr != frOK {
			return fr
		}
	}
	return dp.dir_remove()
}

// f_rename moves or renames the file/directory at oldPath to newPath,
// which must not already exist.
func (fsys *FS) f_rename(oldPath, newPath string) fileResult {
	var src dir
	src.obj.fs = fsys
	fr := src.follow_path(oldPath)
	if fr != frOK {
		return fr
	}
	if src.fn[nsFLAG]&(nsDOT|nsNONAME) != 0 {
		return frInvalidName
	}
	var entBuf [32]byte
	if fr = fsys.move_window(src.sect); fr != frOK {
		return fr
	}
	copy(entBuf[:], src.window_dirent())

	var dst dir
	dst.obj.fs = fsys
	fr = dst.follow_path(newPath)
	if fr == frOK {
		return frExist
	}
	if fr != frNoFile {
		return fr
	}
	fr = dst.dir_register()
	if fr != frOK {
		return fr
	}
	if fr = fsys.move_window(dst.sect); fr != frOK {
		return fr
	}
	// Keep the name and case flags dir_register wrote; carry over the rest.
	ent := dst.window_dirent()
	ent[dirAttrOff] = entBuf[dirAttrOff]
	copy(ent[dirCrtTime10Off:], entBuf[dirCrtTime10Off:])
	fsys.wflag = 1

	return src.dir_remove()
}

// f_stat fills fi with the metadata of the entry at path, without
// opening it.
func (fsys *FS) f_stat(path string, fi *FileInfo) fileResult {
	var dp dir
	dp.obj.fs = fsys
	fr := dp.follow_path(path)
	if fr != frOK {
		return fr
	}
	if dp.fn[nsFLAG]&nsNONAME != 0 {
		*fi = FileInfo{fattrib: amDIR}
		return frOK
	}
	return dp.f_readdir(fi) // dp is positioned on the match; f_readdir reads the entry it sits on.
}

// f_chmod applies mask & attr to the attribute byte of the entry at
// path, preserving the directory/volume-label bits the mask does not
// cover.
func (fsys *FS) f_chmod(path string, attr, mask byte) fileResult {
	var dp dir
	dp.obj.fs = fsys
	fr := dp.follow_path(path)
	if fr != frOK {
		return fr
	}
	if dp.fn[nsFLAG]&nsNONAME != 0 {
		return frInvalidName
	}
	mask &= amRDO | amHID | amSYS | amARC
	if fr = fsys.move_window(dp.sect); fr != frOK {
		return fr
	}
	cur := fsys.win[dp.ofs+dirAttrOff]
	fsys.win[dp.ofs+dirAttrOff] = (cur &^ mask) | (attr & mask)
	fsys.wflag = 1
	return frOK
}

// f_utime sets the modification date/time of the entry at path.
func (fsys *FS) f_utime(path string, fi *FileInfo) fileResult {
	var dp dir
	dp.obj.fs = fsys
	fr := dp.follow_path(path)
	if fr != frOK {
		return fr
	}
	if dp.fn[nsFLAG]&nsNONAME != 0 {
		return frInvalidName
	}
	if fr = fsys.move_window(dp.sect); fr != frOK {
		return fr
	}
	binary.LittleEndian.PutUint16(fsys.win[dp.ofs+dirWrtDateOff:], fi.fdate)
	binary.LittleEndian.PutUint16(fsys.win[dp.ofs+dirModTimeOff:], fi.ftime)
	fsys.wflag = 1
	return frOK
}
