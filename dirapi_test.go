package fat

import (
	"io"
	"testing"
)

func TestMatchPatternGlob(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"", "anything", true},
		{"*.TXT", "FOO.TXT", true},
		{"*.txt", "FOO.TXT", true}, // case-folded.
		{"*.BIN", "FOO.TXT", false},
		{"F??.TXT", "FOO.TXT", true},
		{"F?.TXT", "FOO.TXT", false},
		{"*", "", true},
	}
	for _, tc := range cases {
		if got := matchPattern(tc.pattern, tc.name); got != tc.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tc.pattern, tc.name, got, tc.want)
		}
	}
}

func TestMkdirAndStat(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	if err := fs.Mkdir("/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	fi, err := fs.Stat("/sub")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.fattrib&amDIR == 0 {
		t.Fatalf("Stat should report the directory attribute")
	}
}

func TestMkdirDuplicateFails(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	if err := fs.Mkdir("/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Mkdir("/sub"); err == nil {
		t.Fatalf("expected duplicate Mkdir to fail")
	}
}

func TestRemoveFile(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	var fp File
	if err := fs.OpenFile(&fp, "/gone.txt", ModeRW|ModeCreateNew); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	fp.Close()
	if err := fs.Remove("/gone.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := fs.Stat("/gone.txt"); err == nil {
		t.Fatalf("expected Stat to fail after Remove")
	}
}

func TestRemoveNonEmptyDirFails(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	var fp File
	if err := fs.OpenFile(&fp, "/d/f.txt", ModeRW|ModeCreateNew); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	fp.Close()
	if err := fs.Remove("/d"); err == nil {
		t.Fatalf("expected Remove on a non-empty directory to fail")
	}
}

func TestRenameFile(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	var fp File
	if err := fs.OpenFile(&fp, "/old.txt", ModeRW|ModeCreateNew); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	fp.Write([]byte("payload"))
	fp.Close()

	if err := fs.Rename("/old.txt", "/new.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := fs.Stat("/old.txt"); err == nil {
		t.Fatalf("old path should no longer exist")
	}
	fi, err := fs.Stat("/new.txt")
	if err != nil {
		t.Fatalf("Stat new path: %v", err)
	}
	if fi.fsize != 7 {
		t.Fatalf("renamed file size = %d, want 7", fi.fsize)
	}
}

func TestRenameOntoExistingFails(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	for _, name := range []string{"/a.txt", "/b.txt"} {
		var fp File
		if err := fs.OpenFile(&fp, name, ModeRW|ModeCreateNew); err != nil {
			t.Fatalf("OpenFile %s: %v", name, err)
		}
		fp.Close()
	}
	if err := fs.Rename("/a.txt", "/b.txt"); err == nil {
		t.Fatalf("expected Rename onto an existing path to fail")
	}
}

func TestChmodAppliesMaskedBits(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	var fp File
	if err := fs.OpenFile(&fp, "/ro.txt", ModeRW|ModeCreateNew); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	fp.Close()

	if err := fs.Chmod("/ro.txt", amRDO); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	fi, err := fs.Stat("/ro.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.fattrib&amRDO == 0 {
		t.Fatalf("expected the read-only attribute to be set")
	}
}

func TestUtimeSetsDirentTimestamp(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	var fp File
	if err := fs.OpenFile(&fp, "/stamped.txt", ModeRW|ModeCreateNew); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	fp.Close()

	want := FileInfo{fdate: 0x4321, ftime: 0x8765}
	if fr := fs.f_utime("/stamped.txt", &want); fr != frOK {
		t.Fatalf("f_utime: %v", fr)
	}
	fi, err := fs.Stat("/stamped.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.fdate != want.fdate || fi.ftime != want.ftime {
		t.Fatalf("timestamps = (%#04x,%#04x), want (%#04x,%#04x)", fi.fdate, fi.ftime, want.fdate, want.ftime)
	}
}

func TestFindFirstFindNext(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	for _, name := range []string{"/a.txt", "/b.txt", "/c.bin"} {
		var fp File
		if err := fs.OpenFile(&fp, name, ModeRW|ModeCreateNew); err != nil {
			t.Fatalf("OpenFile %s: %v", name, err)
		}
		fp.Close()
	}
	var dp Dir
	if err := fs.OpenDir(&dp, "/"); err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	count := 0
	_, err := dp.FindFirst("*.txt")
	for err == nil {
		count++
		_, err = dp.FindNext()
	}
	if err != io.EOF {
		t.Fatalf("FindNext terminal error = %v, want io.EOF", err)
	}
	if count != 2 {
		t.Fatalf("matched %d entries, want 2", count)
	}
}

func TestLabelRoundTrip(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	if lbl, err := fs.Label(); err != nil || lbl != "" {
		t.Fatalf("fresh volume label = (%q,%v), want (\"\", nil)", lbl, err)
	}
	if err := fs.SetLabel("MYDISK"); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	got, err := fs.Label()
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if got != "MYDISK" {
		t.Fatalf("Label() = %q, want MYDISK", got)
	}
	if err := fs.SetLabel("OTHERDISK"); err != nil {
		t.Fatalf("SetLabel replace: %v", err)
	}
	got, err = fs.Label()
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if got != "OTHERDISK" {
		t.Fatalf("Label() after replace = %q, want OTHERDISK", got)
	}
}

func TestChdirAndGetwd(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	if err := fs.Mkdir("/SUB"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Chdir("/SUB"); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	// Getwd rebuilds the path from the raw 8.3 entries, which are always
	// stored uppercase, so it reports "/SUB" even though Chdir accepted
	// any case.
	wd, err := fs.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if wd != "/SUB" {
		t.Fatalf("Getwd() = %q, want /SUB", wd)
	}

	var fp File
	if err := fs.OpenFile(&fp, "RELATIVE.TXT", ModeRW|ModeCreateNew); err != nil {
		t.Fatalf("OpenFile relative path: %v", err)
	}
	fp.Close()
	if _, err := fs.Stat("/SUB/RELATIVE.TXT"); err != nil {
		t.Fatalf("expected relative create to land inside /SUB: %v", err)
	}

	if err := fs.Chdir("/"); err != nil {
		t.Fatalf("Chdir back to root: %v", err)
	}
	wd, err = fs.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if wd != "/" {
		t.Fatalf("Getwd() at root = %q, want /", wd)
	}
}

func TestChdirRejectsFile(t *testing.T) {
	fs := mountTestFAT16(t, 4200)
	var fp File
	if err := fs.OpenFile(&fp, "/file.txt", ModeRW|ModeCreateNew); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	fp.Close()
	if err := fs.Chdir("/file.txt"); err == nil {
		t.Fatalf("expected Chdir into a plain file to fail")
	}
}
