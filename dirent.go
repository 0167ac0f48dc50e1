package fat

import "encoding/binary"

// sdi seeds dp to point at the entry at byte offset ofs within dp's
// directory (the root directory if dp.obj.sclust is its sentinel for a
// fixed-extent FAT12/16 root). It only sets dp.sect/ofs; callers load the
// sector window with move_window(dp.sect) before using window_dirent.
func (dp *dir) sdi(ofs uint32) fileResult {
	fsys := dp.obj.fs
	dp.dptr = ofs
	clust := dp.obj.sclust
	if clust == 0 && fsys.fstype != fstypeFAT32 {
		// Fixed-extent root directory.
		if ofs/sizeDirEntry >= uint32(fsys.nrootdir) {
			return frNoFile
		}
		dp.clust = 0
		dp.sect = fsys.dirbase + lba(ofs/uint32(fsys.ssize))
		dp.ofs = uint16(ofs % uint32(fsys.ssize))
		return frOK
	}
	if clust == 0 {
		clust = uint32(fsys.dirbase) // FAT32 root directory lives in a cluster chain too.
	}
	cluSize := uint32(fsys.csize) * uint32(fsys.ssize)
	for ofs >= cluSize {
		next := dp.obj.clusterstat(clust)
		if next < 2 {
			return frNoFile
		}
		if next >= fsys.n_fatent {
			return frNoFile // Past the end of the chain.
		}
		clust = next
		ofs -= cluSize
	}
	dp.clust = clust
	dp.sect = fsys.clst2sect(clust) + lba(ofs/uint32(fsys.ssize))
	dp.ofs = uint16(ofs % uint32(fsys.ssize))
	return frOK
}

// dir_next advances dp to the next directory entry, allocating a new
// cluster for a cluster-chain directory when extend is true and the
// chain's end is reached. Returns frNoFile when the directory is
// exhausted and extend is false.
func (dp *dir) dir_next(extend bool) fileResult {
	fsys := dp.obj.fs
	ofs := dp.dptr + sizeDirEntry
	if ofs >= maxDIR {
		return frNoFile
	}
	if dp.clust == 0 && fsys.fstype != fstypeFAT32 {
		if ofs/sizeDirEntry >= uint32(fsys.nrootdir) {
			return frNoFile
		}
		dp.dptr = ofs
		dp.sect = fsys.dirbase + lba(ofs/uint32(fsys.ssize))
		dp.ofs = uint16(ofs % uint32(fsys.ssize))
		return frOK
	}
	cluSize := uint32(fsys.csize) * uint32(fsys.ssize)
	if ofs%cluSize == 0 {
		clust := dp.obj.clusterstat(dp.clust)
		if clust < 2 {
			return frDiskErr
		}
		if clust >= fsys.n_fatent {
			if !extend {
				return frNoFile
			}
			var fr fileResult
			clust, fr = dp.obj.create_chain(dp.clust)
			if fr != frOK {
				return fr
			}
			if dp.clear_cluster(clust) != frOK {
				return frDiskErr
			}
		}
		dp.clust = clust
		dp.sect = fsys.clst2sect(clust)
	} else {
		dp.sect += lba(b2i[uint32](ofs%uint32(fsys.ssize) == 0))
	}
	dp.dptr = ofs
	dp.ofs = uint16(ofs % uint32(fsys.ssize))
	return frOK
}

func (dp *dir) clear_cluster(clust uint32) fileResult {
	fsys := dp.obj.fs
	sect := fsys.clst2sect(clust)
	zero := make([]byte, fsys.ssize)
	for i := uint16(0); i < fsys.csize; i++ {
		if fsys.disk_write(zero, sect+lba(i), 1) != drOK {
			return frDiskErr
		}
	}
	return frOK
}

// dir_alloc finds or creates nent consecutive free entries (the LFN
// fragments for a long name, if any, followed by the SFN entry), scanning
// from the start of dp's directory, leaving dp positioned at the last of them —
// the slot the SFN entry belongs in, with the nent-1 LFN fragments
// immediately preceding it.
func (dp *dir) dir_alloc(nent int) fileResult {
	fsys := dp.obj.fs
	fr := dp.sdi(0)
	if fr != frOK {
		return fr
	}
	n := 0
	for {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		b := fsys.win[dp.ofs]
		if b == 0x00 || b == 0xE5 {
			n++
			if n == nent {
				return frOK
			}
		} else {
			n = 0
		}
		fr = dp.dir_next(true)
		if fr != frOK {
			return fr
		}
	}
}

// dir_read scans forward from dp's current position for the next entry
// matching the wanted kind: LFN fragments and volume-label entries are
// skipped unless explicitly asked for. A zero first byte marks the end of
// the directory.
func (dp *dir) dir_read(wantLFN bool) fileResult {
	fsys := dp.obj.fs
	var fr fileResult
	for {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		b := fsys.win[dp.ofs]
		if b == 0 {
			return frNoFile
		}
		attr := fsys.win[dp.ofs+dirAttrOff] & amMASK
		isLFNFrag := attr == amLFN
		if b != 0xE5 && b != '.' && isLFNFrag == wantLFN && !(attr&amVOL != 0 && !isLFNFrag) {
			return frOK
		}
		fr = dp.dir_next(false)
		if fr != frOK {
			return fr
		}
	}
}

func (dp *dir) window_dirent() []byte {
	fsys := dp.obj.fs
	return fsys.win[dp.ofs : dp.ofs+sizeDirEntry]
}

// dir_register writes dp.fn (built by create_name) as a new SFN entry,
// preceded by the LFN fragments for dp's long name in fsys.lfnbuf, if any.
func (dp *dir) dir_register() fileResult {
	fsys := dp.obj.fs
	nlfn := 0
	if dp.fn[nsFLAG]&nsLFN != 0 {
		nlfn = (lfnLength(fsys.lfnbuf[:]) + lfnCharsPerEntry - 1) / lfnCharsPerEntry
	}
	fr := dp.dir_alloc(nlfn + 1)
	if fr != frOK {
		return fr
	}
	if nlfn > 0 {
		sfnChk := sum_sfn(dp.fn[:11])
		dirOfsSave := dp.dptr
		for i := nlfn; i >= 1; i-- {
			fr = dp.sdi(dirOfsSave - uint32(i)*sizeDirEntry)
			if fr != frOK {
				return fr
			}
			fr = fsys.move_window(dp.sect)
			if fr != frOK {
				return fr
			}
			ord := byte(i)
			if i == nlfn {
				ord |= ldirLastLongEntry
			}
			put_lfn(dp.window_dirent(), fsys.lfnbuf[:], ord, sfnChk)
			fsys.wflag = 1
		}
		fr = dp.sdi(dirOfsSave)
		if fr != frOK {
			return fr
		}
	}
	fr = fsys.move_window(dp.sect)
	if fr != frOK {
		return fr
	}
	ent := dp.window_dirent()
	clear(ent)
	copy(ent[dirNameOff:], dp.fn[:11])
	ent[dirNTresOff] = dp.fn[nsFLAG] & (nsBODY | nsEXT)
	fdate, ftime := fatTimestamp(fsys.clock.Now())
	binary.LittleEndian.PutUint16(ent[dirCrtDateOff:], fdate)
	binary.LittleEndian.PutUint16(ent[dirCrtTimeOff:], ftime)
	binary.LittleEndian.PutUint16(ent[dirWrtDateOff:], fdate)
	binary.LittleEndian.PutUint16(ent[dirModTimeOff:], ftime)
	binary.LittleEndian.PutUint16(ent[dirLstAccDateOff:], fdate)
	fsys.wflag = 1
	return frOK
}

// dir_remove marks dp's current SFN entry and all of its preceding LFN
// fragments (walked backward until the ordinal's LAST flag) as deleted.
func (dp *dir) dir_remove() fileResult {
	fsys := dp.obj.fs
	dirOfs := dp.dptr
	fr := dp.sdi(dirOfs)
	if fr != frOK {
		return fr
	}
	// Walk backward over LFN fragments first so a disk error midway
	// leaves the SFN entry (the authoritative one) untouched.
	ofs := dirOfs
	for ofs >= sizeDirEntry {
		ofs -= sizeDirEntry
		fr = dp.sdi(ofs)
		if fr != frOK {
			return fr
		}
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		ent := dp.window_dirent()
		if ent[ldirAttrOff] != amLFN {
			break
		}
		ent[0] = 0xE5
		fsys.wflag = 1
		if ent[ldirOrdOff]&ldirLastLongEntry != 0 {
			break
		}
	}
	fr = dp.sdi(dirOfs)
	if fr != frOK {
		return fr
	}
	fr = fsys.move_window(dp.sect)
	if fr != frOK {
		return fr
	}
	dp.window_dirent()[0] = 0xE5
	fsys.wflag = 1
	return frOK
}
