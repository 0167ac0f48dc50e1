package fat

import "encoding/binary"

// f_open resolves path and attaches fp to the resulting file, applying
// the create/truncate/append semantics encoded in mode.
func (fsys *FS) f_open(fp *File, path string, mode accessmode) fileResult {
	var dp dir
	dp.obj.fs = fsys
	fr := dp.follow_path(path)
	if fr == frOK && dp.fn[nsFLAG]&nsNONAME != 0 {
		fr = frInvalidName // Root directory itself cannot be opened as a file.
	}

	var attr byte
	var dirSect lba
	var dirOfs uint16
	var sclust uint32
	var objsize int64

	if fr == frOK {
		attr = fsys.win[dp.ofs+dirAttrOff]
		if attr&amDIR != 0 {
			return frNoFile
		}
		dirSect, dirOfs = dp.sect, dp.ofs
		sclust = dp.start_cluster()
		objsize = int64(fsys.window_u32(uint16(dp.ofs) + dirFileSizeOff))

		switch mode & (faCreateNew | faCreateAlways | faOpenAlways) {
		case faCreateNew:
			return frExist
		}
	} else if fr == frNoFile {
		if mode&(faCreateNew|faCreateAlways|faOpenAlways) == 0 {
			return frNoFile
		}
		fr = dp.dir_register()
		if fr != frOK {
			return fr
		}
		dirSect, dirOfs = dp.sect, dp.ofs
		attr = 0
		sclust = 0
		objsize = 0
	} else {
		return fr
	}

	truncate := mode&faCreateAlways != 0 && fr == frOK

	lockid, lfr := fsys.registry.open(lockKeyClust(&dp), lockKeyOfs(dirSect, dirOfs), mode&faWrite != 0)
	if lfr != frOK {
		return lfr
	}

	if truncate {
		objidTmp := objid{fs: fsys, sclust: sclust}
		if sclust != 0 {
			if e := objidTmp.remove_chain(sclust, 0); e != frOK {
				fsys.registry.close(lockid)
				return e
			}
		}
		sclust = 0
		objsize = 0
		fr = fsys.update_dirent_size_start(dirSect, dirOfs, 0, 0)
		if fr != frOK {
			fsys.registry.close(lockid)
			return fr
		}
	}
	*fp = File{}
	fp.obj.fs = fsys
	fp.obj.id = fsys.id
	fp.obj.attr = attr
	fp.obj.sclust = sclust
	fp.obj.objsize = objsize
	fp.flag = mode & (faRead | faWrite)
	fp.dir_sect = dirSect
	fp.dir_ofs = dirOfs
	fp.lockid = lockid
	fp.clust = 0
	fp.fptr = 0

	if mode&faSeekEnd != 0 {
		fp.fptr = fp.obj.objsize
		off := fp.fptr
		clst := fp.obj.sclust
		cluBytes := int64(fsys.csize) * int64(fsys.ssize)
		for off > cluBytes && clst != 0 {
			next := fp.obj.clusterstat(clst)
			if next < 2 || next >= fsys.n_fatent {
				break
			}
			clst = next
			off -= cluBytes
		}
		fp.clust = clst
		if clst != 0 {
			fp.sect = fsys.clst2sect(clst) + lba(off/int64(fsys.ssize))
		}
	}
	return frOK
}

func lockKeyClust(dp *dir) uint32 { return dp.obj.sclust }
func lockKeyOfs(sect lba, ofs uint16) uint32 { return uint32(sect)<<16 | uint32(ofs) }

func (fsys *FS) update_dirent_size_start(sect lba, ofs uint16, size int64, start uint32) fileResult {
	fr := fsys.move_window(sect)
	if fr != frOK {
		return fr
	}
	binary.LittleEndian.PutUint32(fsys.win[ofs+dirFileSizeOff:], uint32(size))
	binary.LittleEndian.PutUint16(fsys.win[ofs+dirFstClusLOOff:], uint16(start))
	binary.LittleEndian.PutUint16(fsys.win[ofs+dirFstClusHIOff:], uint16(start>>16))
	fsys.wflag = 1
	return frOK
}

// f_read copies up to len(buf) bytes starting at fp's current position
// into buf, returning the number of bytes actually read. Reading stops
// short of len(buf) only at end of file.
func (fp *File) f_read(buf []byte) (int, fileResult) {
	fsys := fp.obj.fs
	if fp.err != frOK {
		return 0, fp.err
	}
	remain := fp.obj.objsize - fp.fptr
	if int64(len(buf)) > remain {
		buf = buf[:remain]
	}
	total := 0
	for len(buf) > 0 {
		cluBytes := int64(fsys.csize) * int64(fsys.ssize)
		ofsInClust := fp.fptr % cluBytes
		if ofsInClust == 0 {
			var next uint32
			if fp.fptr == 0 {
				next = fp.obj.sclust
			} else if len(fp.cltbl) > 0 {
				next = clmt_clust(fp.cltbl, uint32(cluBytes), fp.fptr)
			} else {
				next = fp.obj.clusterstat(fp.clust)
			}
			if next < 2 || next >= fsys.n_fatent {
				fp.err = frIntErr
				return total, fp.err
			}
			fp.clust = next
			fp.sect = fsys.clst2sect(next)
		}
		secOfs := (fp.fptr % cluBytes) % int64(fsys.ssize)
		sect := fp.sect + lba((fp.fptr%cluBytes)/int64(fsys.ssize))
		n := int64(fsys.ssize) - secOfs
		if n > int64(len(buf)) {
			n = int64(len(buf))
		}
		if secOfs == 0 && n == int64(fsys.ssize) && sect != fsys.winsect {
			if fsys.disk_read(buf[:n], sect, 1) != drOK {
				fp.err = frDiskErr
				return total, fp.err
			}
		} else {
			if fsys.move_window(sect) != frOK {
				fp.err = frDiskErr
				return total, fp.err
			}
			copy(buf[:n], fsys.win[secOfs:secOfs+n])
		}
		buf = buf[n:]
		total += int(n)
		fp.fptr += n
	}
	return total, frOK
}

// f_write writes buf at fp's current position, growing the file's
// cluster chain as needed.
func (fp *File) f_write(buf []byte) (int, fileResult) {
	fsys := fp.obj.fs
	if fp.err != frOK {
		return 0, fp.err
	}
	if fp.flag&faWrite == 0 {
		return 0, frDenied
	}
	total := 0
	for len(buf) > 0 {
		cluBytes := int64(fsys.csize) * int64(fsys.ssize)
		ofsInClust := fp.fptr % cluBytes
		if ofsInClust == 0 {
			var next uint32
			var fr fileResult
			if fp.fptr == 0 && fp.obj.sclust == 0 {
				next, fr = fp.obj.create_chain(0)
				if fr != frOK {
					fp.err = fr
					return total, fr
				}
				fp.obj.sclust = next
			} else if fp.fptr == 0 {
				next = fp.obj.sclust
			} else {
				next, fr = fp.obj.create_chain(fp.clust)
				if fr != frOK {
					fp.err = fr
					return total, fr
				}
			}
			fp.clust = next
			fp.sect = fsys.clst2sect(next)
		}
		secOfs := (fp.fptr % cluBytes) % int64(fsys.ssize)
		sect := fp.sect + lba((fp.fptr%cluBytes)/int64(fsys.ssize))
		n := int64(fsys.ssize) - secOfs
		if n > int64(len(buf)) {
			n = int64(len(buf))
		}
		if secOfs == 0 && n == int64(fsys.ssize) {
			if sect == fsys.winsect {
				fsys.invalidate_window()
			}
			if fsys.disk_write(buf[:n], sect, 1) != drOK {
				fp.err = frDiskErr
				return total, fp.err
			}
		} else {
			if fsys.move_window(sect) != frOK {
				fp.err = frDiskErr
				return total, fp.err
			}
			copy(fsys.win[secOfs:secOfs+n], buf[:n])
			fsys.wflag = 1
		}
		buf = buf[n:]
		total += int(n)
		fp.fptr += n
		if fp.fptr > fp.obj.objsize {
			fp.obj.objsize = fp.fptr
		}
	}
	fp.flag |= faModified
	return total, frOK
}

// f_lseek repositions fp's file pointer to ofs, clamped to the file's
// current size for a read-only handle and otherwise allowed to create a
// sparse hole that f_write will zero-fill as it is reached.
func (fp *File) f_lseek(ofs int64) fileResult {
	if ofs < 0 {
		return frInvalidParameter
	}
	fp.fptr = ofs
	fp.clust = 0 // Forces f_read/f_write to re-walk from the chain head.
	return frOK
}

// f_truncate discards every cluster beyond fp's current file pointer and
// sets the file size to match.
func (fp *File) f_truncate() fileResult {
	fsys := fp.obj.fs
	if fp.flag&faWrite == 0 {
		return frDenied
	}
	if fp.fptr >= fp.obj.objsize {
		return frOK
	}
	cluBytes := int64(fsys.csize) * int64(fsys.ssize)
	if fp.fptr == 0 {
		if fp.obj.sclust != 0 {
			if fr := fp.obj.remove_chain(fp.obj.sclust, 0); fr != frOK {
				return fr
			}
		}
		fp.obj.sclust = 0
	} else {
		nclst := (fp.fptr + cluBytes - 1) / cluBytes
		clst := fp.obj.sclust
		for i := int64(1); i < nclst; i++ {
			clst = fp.obj.clusterstat(clst)
			if clst < 2 || clst >= fsys.n_fatent {
				return frIntErr
			}
		}
		next := fp.obj.clusterstat(clst)
		if next >= 2 && next < fsys.n_fatent {
			if fr := fp.obj.remove_chain(next, clst); fr != frOK {
				return fr
			}
		}
	}
	fp.obj.objsize = fp.fptr
	fp.flag |= faModified
	return frOK
}

// f_expand grows fp's cluster chain, if necessary, so it covers size
// bytes, without touching fp.obj.objsize or fp.fptr. Every cluster it
// allocates is linked into the FAT before f_expand moves on to the
// next, so a failure midway leaves a shorter, but still valid, chain.
func (fp *File) f_expand(size int64) fileResult {
	fsys := fp.obj.fs
	if fp.flag&faWrite == 0 {
		return frDenied
	}
	if size <= fp.obj.objsize {
		return frOK
	}
	cluBytes := int64(fsys.csize) * int64(fsys.ssize)
	want := (size + cluBytes - 1) / cluBytes
	have := int64(0)
	clst := fp.obj.sclust
	if clst == 0 {
		next, fr := fp.obj.create_chain(0)
		if fr != frOK {
			return fr
		}
		fp.obj.sclust = next
		clst = next
		have = 1
	} else {
		have = 1
		for {
			next := fp.obj.clusterstat(clst)
			if next < 2 || next >= fsys.n_fatent {
				break // clst is the chain's tail.
			}
			clst = next
			have++
		}
	}
	for i := have; i < want; i++ {
		next, fr := fp.obj.create_chain(clst)
		if fr != frOK {
			return fr
		}
		clst = next
	}
	return frOK
}

// f_sync writes back fp's SFN directory entry (size and start cluster)
// and flushes the shared sector window.
func (fp *File) f_sync() fileResult {
	fsys := fp.obj.fs
	if fp.flag&faModified == 0 {
		return frOK
	}
	fr := fsys.update_dirent_size_start(fp.dir_sect, fp.dir_ofs, fp.obj.objsize, fp.obj.sclust)
	if fr != frOK {
		return fr
	}
	if fr = fsys.move_window(fp.dir_sect); fr != frOK {
		return fr
	}
	fdate, ftime := fatTimestamp(fsys.clock.Now())
	binary.LittleEndian.PutUint16(fsys.win[fp.dir_ofs+dirWrtDateOff:], fdate)
	binary.LittleEndian.PutUint16(fsys.win[fp.dir_ofs+dirModTimeOff:], ftime)
	fsys.wflag = 1
	if fr = fsys.sync_window(); fr != frOK {
		return fr
	}
	if fsys.fsi_flag&1 != 0 && fsys.fstype == fstypeFAT32 {
		fsys.sync_fsinfo()
	}
	fp.flag &^= faModified
	return frOK
}

func (fsys *FS) sync_fsinfo() {
	if fsys.move_window(fsys.volbase+1) != frOK {
		return
	}
	binary.LittleEndian.PutUint32(fsys.win[fsiFree_Count:], fsys.free_clst)
	binary.LittleEndian.PutUint32(fsys.win[fsiNxt_Free:], fsys.last_clst)
	fsys.wflag = 1
	fsys.sync_window()
	fsys.fsi_flag &^= 1
}

// f_close releases fp's open-file registry slot and flushes pending
// writes. The handle must not be used again afterward.
func (fp *File) f_close() fileResult {
	fr := fp.f_sync()
	fp.obj.fs.registry.close(fp.lockid)
	fp.lockid = 0
	fp.obj.fs = nil
	return fr
}
