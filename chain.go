package fat

// create_chain extends the cluster chain rooted at clst by one cluster,
// allocating from the free cluster hint last_clst. clst == 0 allocates a
// brand new chain and returns its first cluster. Returns the newly
// allocated cluster number, or 0 with a result code on failure.
func (obj *objid) create_chain(clst uint32) (uint32, fileResult) {
	fsys := obj.fs
	scl := fsys.last_clst // A new chain is searched for just after the hint.
	if clst != 0 {
		// Extending an existing chain: the caller already holds the tail.
		cs := obj.clusterstat(clst)
		if cs == 1 {
			return 0, frIntErr // Reserved cell: a structural invariant violation, not an I/O failure.
		}
		if cs < fsys.n_fatent {
			return cs, frOK // Chain already extends past clst; nothing to allocate.
		}
		scl = clst
	}

	ncl, fr := fsys.find_free_cluster(scl)
	if fr != frOK {
		return 0, fr
	}
	fr = obj.put_clusterstat(ncl, eocMarker(fsys.fstype))
	if fr != frOK {
		return 0, fr
	}
	if clst != 0 {
		fr = obj.put_clusterstat(clst, ncl)
		if fr != frOK {
			return 0, fr
		}
	}
	fsys.last_clst = ncl
	if fsys.free_clst != 0xffff_ffff {
		fsys.free_clst--
		fsys.fsi_flag |= 1
	}
	return ncl, frOK
}

func eocMarker(ft fstype) uint32 {
	switch ft {
	case fstypeFAT12:
		return eocFAT12
	case fstypeFAT16:
		return eocFAT16
	default:
		return eocFAT32
	}
}

// find_free_cluster scans the FAT for a free cell, starting the search
// just after hint and wrapping around once.
func (fsys *FS) find_free_cluster(hint uint32) (uint32, fileResult) {
	obj := objid{fs: fsys}
	start := hint + 1
	if start < 2 || start >= fsys.n_fatent {
		start = 2
	}
	for pass := 0; pass < 2; pass++ {
		lo, hi := start, fsys.n_fatent
		if pass == 1 {
			lo, hi = 2, start
		}
		for c := lo; c < hi; c++ {
			if obj.clusterstat(c) == 0 {
				return c, frOK
			}
		}
		start = 2
	}
	return 0, frNoSpaceLeft
}

// remove_chain frees every cluster in the chain starting at clst. pclst,
// if non-zero, is the cluster that currently points at clst; it is
// truncated to mark end-of-chain rather than freed, implementing a
// truncating free that keeps the chain's head alive.
func (obj *objid) remove_chain(clst, pclst uint32) fileResult {
	fsys := obj.fs
	if clst < 2 || clst >= fsys.n_fatent {
		return frIntErr
	}
	if pclst != 0 {
		fr := obj.put_clusterstat(pclst, eocMarker(fsys.fstype))
		if fr != frOK {
			return fr
		}
	}
	var freed uint32
	for clst != 0 && clst < fsys.n_fatent {
		next := obj.clusterstat(clst)
		if next == 1 {
			return frIntErr // Reserved cell: a structural invariant violation, not an I/O failure.
		}
		if next == 0xffff_ffff {
			return frDiskErr
		}
		fr := obj.put_clusterstat(clst, 0)
		if fr != frOK {
			return fr
		}
		freed++
		clst = next
		if next >= eocMarker(fsys.fstype)-7 && fsys.fstype != fstypeFAT32 {
			break // Reached an EOC cell for FAT12/16, whose EOC range is wide.
		}
	}
	if fsys.free_clst != 0xffff_ffff {
		fsys.free_clst += freed
		fsys.fsi_flag |= 1
	}
	return frOK
}

// clmt_clust walks a CLMT run-table (see File.cltbl) to translate a byte
// offset into a physical cluster number, for fast seeking over a
// known-contiguous layout without a FAT chain walk. clusterBytes is the
// volume's cluster size in bytes. cltbl[0] holds the table's element count
// and is not read here; traversal starts at cltbl[1] and stops at a zero
// run length or the end of the slice.
func clmt_clust(cltbl []uint32, clusterBytes uint32, ofs int64) uint32 {
	if len(cltbl) < 3 || clusterBytes == 0 {
		return 0
	}
	tcl := uint32(ofs / int64(clusterBytes))
	i := 1
	for i+1 < len(cltbl) {
		runLen := cltbl[i]
		cl := cltbl[i+1]
		if runLen == 0 {
			break // Table terminator.
		}
		if tcl < runLen {
			return cl + tcl
		}
		tcl -= runLen
		i += 2
	}
	return 0
}
