package fat

// registry is the per-volume open-file table (component K). It tracks, for
// every directory entry with an open handle, how many readers are sharing
// it or whether a single writer holds it exclusively. Entries are keyed by
// the cluster of the directory that contains the entry plus the entry's
// byte offset within that directory, which together identify a directory
// entry independently of any in-memory handle.
type registry struct {
	entries [maxOpenFiles]regEntry
}

const maxOpenFiles = 16

// exclusive is stored in regEntry.share to mark a single writer holding
// the entry; any other value is a count of concurrent shared readers.
const exclusive = 0x100

type regEntry struct {
	used   bool
	dclust uint32 // Start cluster of the directory holding the entry, 0 for fixed root.
	dofs   uint32 // Byte offset of the entry within that directory.
	share  uint32 // 0 = unused slot once !used, exclusive = locked for write, else reader count.
}

func (r *registry) reset() {
	for i := range r.entries {
		r.entries[i] = regEntry{}
	}
}

func (r *registry) find(dclust, dofs uint32) int {
	for i := range r.entries {
		if r.entries[i].used && r.entries[i].dclust == dclust && r.entries[i].dofs == dofs {
			return i
		}
	}
	return -1
}

// open registers a new handle over the entry identified by (dclust, dofs)
// and returns a 1-based lock id, or 0 and a result code on failure.
// write selects whether the new handle needs exclusive access.
func (r *registry) open(dclust, dofs uint32, write bool) (uint16, fileResult) {
	i := r.find(dclust, dofs)
	if i < 0 {
		for j := range r.entries {
			if !r.entries[j].used {
				i = j
				break
			}
		}
		if i < 0 {
			return 0, frTooManyOpenFiles
		}
		r.entries[i] = regEntry{used: true, dclust: dclust, dofs: dofs}
	}
	e := &r.entries[i]
	switch {
	case write && e.share != 0:
		return 0, frLocked // Already shared or exclusively locked: cannot grab exclusive access.
	case !write && e.share == exclusive:
		return 0, frLocked // Already exclusively locked: cannot add a reader.
	case write:
		e.share = exclusive
	default:
		e.share++
	}
	return uint16(i) + 1, frOK
}

// close releases the handle identified by lockid, which must be the value
// returned by a prior successful open.
func (r *registry) close(lockid uint16) {
	if lockid == 0 {
		return
	}
	e := &r.entries[lockid-1]
	if e.share == exclusive {
		e.share = 0
	} else if e.share > 0 {
		e.share--
	}
	if e.share == 0 {
		e.used = false
	}
}

// rekey updates the identity of an open entry after the underlying
// directory entry moved, such as when create_chain extends a directory.
func (r *registry) rekey(lockid uint16, dclust, dofs uint32) {
	if lockid == 0 {
		return
	}
	e := &r.entries[lockid-1]
	e.dclust, e.dofs = dclust, dofs
}

// isShared reports whether any handle currently references the entry.
func (r *registry) isShared(dclust, dofs uint32) bool {
	i := r.find(dclust, dofs)
	return i >= 0 && r.entries[i].share != 0
}
