package fat

import "testing"

func TestSdiAndDirNextWalkRootDirectory(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	dp := dir{obj: objid{fs: fs}}

	if fr := dp.sdi(0); fr != frOK {
		t.Fatalf("sdi(0): %v", fr)
	}
	if dp.sect != fs.dirbase {
		t.Fatalf("sdi(0) sect = %d, want dirbase %d", dp.sect, fs.dirbase)
	}
	if fr := dp.dir_next(false); fr != frOK {
		t.Fatalf("dir_next: %v", fr)
	}
	if dp.dptr != sizeDirEntry {
		t.Fatalf("dptr after dir_next = %d, want %d", dp.dptr, sizeDirEntry)
	}
}

func TestDirNextStopsAtFixedRootEnd(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	dp := dir{obj: objid{fs: fs}}

	if fr := dp.sdi(uint32(fs.nrootdir-1) * sizeDirEntry); fr != frOK {
		t.Fatalf("sdi(last entry): %v", fr)
	}
	if fr := dp.dir_next(false); fr != frNoFile {
		t.Fatalf("dir_next past fixed root end = %v, want frNoFile", fr)
	}
}

func TestDirAllocFindsFreeSlotInEmptyDirectory(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	dp := dir{obj: objid{fs: fs}}

	if fr := dp.dir_alloc(1); fr != frOK {
		t.Fatalf("dir_alloc(1): %v", fr)
	}
	if dp.dptr != 0 {
		t.Fatalf("dir_alloc should land on the first, untouched entry, got dptr=%d", dp.dptr)
	}
}

func TestDirRegisterThenDirReadRoundTrip(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	dp := dir{obj: objid{fs: fs}}

	if _, fr := dp.create_name("FOO.TXT"); fr != frOK {
		t.Fatalf("create_name: %v", fr)
	}
	if fr := dp.dir_register(); fr != frOK {
		t.Fatalf("dir_register: %v", fr)
	}

	rd := dir{obj: objid{fs: fs}}
	if fr := rd.sdi(0); fr != frOK {
		t.Fatalf("sdi: %v", fr)
	}
	if fr := rd.dir_read(false); fr != frOK {
		t.Fatalf("dir_read: %v", fr)
	}
	ent := rd.window_dirent()
	if string(ent[dirNameOff:dirNameOff+11]) != "FOO     TXT" {
		t.Fatalf("registered entry name = %q, want %q", ent[dirNameOff:dirNameOff+11], "FOO     TXT")
	}
}

func TestDirRegisterWritesLFNFragmentsBeforeSFN(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	dp := dir{obj: objid{fs: fs}}

	if _, fr := dp.create_name("ThisNameIsDefinitelyTooLong.txt"); fr != frOK {
		t.Fatalf("create_name: %v", fr)
	}
	if fr := dp.dir_register(); fr != frOK {
		t.Fatalf("dir_register: %v", fr)
	}

	rd := dir{obj: objid{fs: fs}}
	if fr := rd.sdi(0); fr != frOK {
		t.Fatalf("sdi: %v", fr)
	}
	if fr := rd.dir_read(true); fr != frOK {
		t.Fatalf("dir_read(wantLFN=true) should find an LFN fragment first: %v", fr)
	}
	ent := rd.window_dirent()
	if ent[ldirAttrOff] != amLFN {
		t.Fatalf("first entry attr = %#x, want amLFN", ent[ldirAttrOff])
	}
}

func TestDirRemoveDeletesSFNAndPrecedingLFNFragments(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	dp := dir{obj: objid{fs: fs}}

	if _, fr := dp.create_name("ThisNameIsDefinitelyTooLong.txt"); fr != frOK {
		t.Fatalf("create_name: %v", fr)
	}
	if fr := dp.dir_register(); fr != frOK {
		t.Fatalf("dir_register: %v", fr)
	}

	rm := dir{obj: objid{fs: fs}}
	if fr := rm.sdi(0); fr != frOK {
		t.Fatalf("sdi: %v", fr)
	}
	if fr := rm.dir_read(false); fr != frOK {
		t.Fatalf("dir_read(sfn): %v", fr)
	}
	if fr := rm.dir_remove(); fr != frOK {
		t.Fatalf("dir_remove: %v", fr)
	}

	scan := dir{obj: objid{fs: fs}}
	if fr := scan.sdi(0); fr != frOK {
		t.Fatalf("sdi: %v", fr)
	}
	if fr := scan.dir_read(false); fr != frNoFile {
		t.Fatalf("dir_read after removal = %v, want frNoFile (only deleted entries remain)", fr)
	}
}

func TestClearClusterZeroesWholeCluster(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	obj := objid{fs: fs}
	clust, fr := obj.create_chain(0)
	if fr != frOK {
		t.Fatalf("create_chain: %v", fr)
	}
	sect := fs.clst2sect(clust)
	garbage := make([]byte, fs.ssize)
	for i := range garbage {
		garbage[i] = 0xAA
	}
	if fs.disk_write(garbage, sect, 1) != drOK {
		t.Fatalf("disk_write garbage")
	}

	dp := dir{obj: obj}
	if fr := dp.clear_cluster(clust); fr != frOK {
		t.Fatalf("clear_cluster: %v", fr)
	}
	if fr := fs.move_window(sect); fr != frOK {
		t.Fatalf("move_window: %v", fr)
	}
	for i, b := range fs.win[:fs.ssize] {
		if b != 0 {
			t.Fatalf("byte %d of cleared cluster = %#x, want 0", i, b)
		}
	}
}
