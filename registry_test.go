package fat

import "testing"

func TestRegistrySharedReaders(t *testing.T) {
	var r registry
	id1, fr := r.open(5, 64, false)
	if fr != frOK {
		t.Fatalf("open reader 1: %v", fr)
	}
	id2, fr := r.open(5, 64, false)
	if fr != frOK {
		t.Fatalf("open reader 2: %v", fr)
	}
	if id1 == 0 || id2 == 0 {
		t.Fatalf("expected nonzero lock ids, got %d %d", id1, id2)
	}
	if !r.isShared(5, 64) {
		t.Fatalf("expected entry to be reported shared")
	}
	r.close(id1)
	if !r.isShared(5, 64) {
		t.Fatalf("expected entry to remain shared after one reader closes")
	}
	r.close(id2)
	if r.isShared(5, 64) {
		t.Fatalf("expected entry to be free after all readers close")
	}
}

func TestRegistryExclusiveWriterBlocksReaders(t *testing.T) {
	var r registry
	wid, fr := r.open(1, 32, true)
	if fr != frOK {
		t.Fatalf("open writer: %v", fr)
	}
	if _, fr = r.open(1, 32, false); fr != frLocked {
		t.Fatalf("expected frLocked opening reader against exclusive writer, got %v", fr)
	}
	if _, fr = r.open(1, 32, true); fr != frLocked {
		t.Fatalf("expected frLocked opening a second writer, got %v", fr)
	}
	r.close(wid)
	if _, fr = r.open(1, 32, false); fr != frOK {
		t.Fatalf("expected reader open to succeed once writer closed: %v", fr)
	}
}

func TestRegistryReaderBlocksWriter(t *testing.T) {
	var r registry
	rid, fr := r.open(9, 0, false)
	if fr != frOK {
		t.Fatalf("open reader: %v", fr)
	}
	if _, fr = r.open(9, 0, true); fr != frLocked {
		t.Fatalf("expected frLocked opening writer against shared reader, got %v", fr)
	}
	r.close(rid)
	if _, fr = r.open(9, 0, true); fr != frOK {
		t.Fatalf("expected writer open to succeed once reader closed: %v", fr)
	}
}

func TestRegistryFull(t *testing.T) {
	var r registry
	for i := 0; i < maxOpenFiles; i++ {
		if _, fr := r.open(uint32(i+1), 0, false); fr != frOK {
			t.Fatalf("open %d: %v", i, fr)
		}
	}
	if _, fr := r.open(999, 0, false); fr != frTooManyOpenFiles {
		t.Fatalf("expected frTooManyOpenFiles on a full registry, got %v", fr)
	}
}

func TestRegistryRekey(t *testing.T) {
	var r registry
	id, fr := r.open(2, 10, true)
	if fr != frOK {
		t.Fatalf("open: %v", fr)
	}
	r.rekey(id, 2, 200)
	if r.isShared(2, 10) {
		t.Fatalf("old key should no longer be tracked after rekey")
	}
	if !r.isShared(2, 200) {
		t.Fatalf("new key should be tracked after rekey")
	}
}
