package fat

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Mode represents the file access mode used in OpenFile, and the
// permission granted to a volume at Mount.
type Mode uint8

// File access modes for calling OpenFile.
const (
	ModeRead  Mode = Mode(faRead)
	ModeWrite Mode = Mode(faWrite)
	ModeRW    Mode = ModeRead | ModeWrite

	ModeCreateNew    Mode = Mode(faCreateNew)
	ModeCreateAlways Mode = Mode(faCreateAlways)
	ModeOpenExisting Mode = Mode(faOpenExisting)
	ModeOpenAlways   Mode = Mode(faOpenAlways)
	ModeOpenAppend   Mode = Mode(faOpenAppend)

	allowedModes = ModeRead | ModeWrite | ModeCreateNew | ModeCreateAlways |
		ModeOpenExisting | ModeOpenAlways | ModeOpenAppend
)

var (
	errInvalidMode   = errors.New("invalid fat access mode")
	errForbiddenMode = errors.New("forbidden fat access mode")
)

// Dir represents an open FAT directory.
type Dir struct {
	dir
	inlineInfo FileInfo
	pattern    string
}

// Mount mounts the FAT file system on the given block device and sector
// size. It immediately invalidates previously open files and
// directories pointing to the same FS. mode should be ModeRead,
// ModeWrite, or both, and cannot exceed what bd.Mode() allows.
func (fsys *FS) Mount(bd BlockDevice, blockSize int, mode Mode) error {
	if mode&^(ModeRead|ModeWrite) != 0 || mode&(ModeRead|ModeWrite) == 0 {
		return errInvalidMode
	} else if blockSize > math.MaxUint16 {
		return errors.New("sector size too large")
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fr := fsys.mount_volume(bd, uint16(blockSize), uint8(mode))
	if fr != frOK {
		return fr
	}
	fsys.perm = mode
	return nil
}

// SetLogger attaches a structured logger for diagnostic messages emitted
// while accessing the volume. A nil logger silences them.
func (fsys *FS) SetLogger(logger *slog.Logger) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.logger = logger
}

// SetCodepage selects the OEM code page used to interpret and generate
// short filenames. Must be called before OpenFile/OpenDir to take effect
// on name resolution; Mount installs DefaultCodepage only when none has
// been set.
func (fsys *FS) SetCodepage(cp Codepage) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.codepage = cp
}

// SetClock selects the time source stamped into new and modified
// directory entries. Mount installs NullClock only when none has been set.
func (fsys *FS) SetClock(c Clock) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.clock = c
}

// FreeClusters reports the volume's free space in clusters. It may
// trigger a full FAT scan on FAT12/16 volumes, which lack an FSInfo
// sector, the first time it is called after Mount.
func (fsys *FS) FreeClusters() (uint32, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fsys.free_clst != 0xffff_ffff {
		return fsys.free_clst, nil
	}
	obj := objid{fs: fsys}
	var free uint32
	for c := uint32(2); c < fsys.n_fatent; c++ {
		if obj.clusterstat(c) == 0 {
			free++
		}
	}
	fsys.free_clst = free
	fsys.debug("free space computed", slog.String("free", humanize.Bytes(uint64(free)*uint64(fsys.csize)*uint64(fsys.ssize))))
	return free, nil
}

// ClusterSize returns the volume's cluster size in bytes.
func (fsys *FS) ClusterSize() int { return int(fsys.csize) * int(fsys.ssize) }

// OpenFile opens the named file for reading or writing, depending on the
// mode. The path is separated by '/' or '\\'; a path starting with a
// separator is resolved from the volume root, otherwise relative to the
// current directory set by Chdir.
func (fsys *FS) OpenFile(fp *File, path string, mode Mode) error {
	prohibited := (mode & ModeRW) &^ fsys.perm
	if mode&^allowedModes != 0 {
		return errInvalidMode
	} else if prohibited != 0 {
		return errForbiddenMode
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fr := fsys.f_open(fp, path, uint8(mode))
	if fr != frOK {
		return fr
	}
	return nil
}

// Read reads up to len(buf) bytes from the File. It implements the [io.Reader] interface.
func (fp *File) Read(buf []byte) (int, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	fsys := fp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	br, fr := fp.f_read(buf)
	if fr != frOK {
		return br, fr
	} else if br == 0 && len(buf) > 0 {
		return br, io.EOF
	}
	return br, nil
}

// Write writes len(buf) bytes to the File. It implements the [io.Writer] interface.
func (fp *File) Write(buf []byte) (int, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	fsys := fp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	bw, fr := fp.f_write(buf)
	if fr != frOK {
		return bw, fr
	}
	return bw, nil
}

// Seek implements the [io.Seeker] interface.
func (fp *File) Seek(offset int64, whence int) (int64, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	fsys := fp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = fp.fptr + offset
	case io.SeekEnd:
		target = fp.obj.objsize + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if fr = fp.f_lseek(target); fr != frOK {
		return fp.fptr, fr
	}
	return fp.fptr, nil
}

// Truncate discards file content beyond the File's current position.
func (fp *File) Truncate() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	fsys := fp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fr = fp.f_truncate(); fr != frOK {
		return fr
	}
	return nil
}

// Close closes the file and syncs any unwritten data to the underlying device.
func (fp *File) Close() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	fsys := fp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fr = fp.f_close()
	if fr != frOK {
		return fr
	}
	return nil
}

// Sync commits the current contents of the file to the filesystem immediately.
func (fp *File) Sync() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	fsys := fp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fr = fp.f_sync()
	if fr != frOK {
		return fr
	}
	return nil
}

// Mode returns the lowest 2 bits of the file's permission (read, write or both).
func (fp *File) Mode() Mode {
	return Mode(fp.flag & (faRead | faWrite))
}

// Size returns the file's size in bytes as of the last Write or Sync.
func (fp *File) Size() int64 { return fp.obj.objsize }

// Expand preallocates clusters so the file can grow to size bytes
// without further allocation, committing each allocated cluster to the
// FAT immediately rather than leaving the chain partially built if
// interrupted.
func (fp *File) Expand(size int64) error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	fsys := fp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fr = fp.f_expand(size); fr != frOK {
		return fr
	}
	return nil
}

// OpenDir opens the named directory for reading.
func (fsys *FS) OpenDir(dp *Dir, path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fr := fsys.f_opendir(&dp.dir, path)
	if fr != frOK {
		return fr
	}
	return nil
}

// ForEachFile calls the callback function for each file in the directory.
func (dp *Dir) ForEachFile(callback func(*FileInfo) error) error {
	fr := dp.obj.validate()
	if fr != frOK {
		return fr
	} else if dp.obj.fs.perm&ModeRead == 0 {
		return errForbiddenMode
	}
	fsys := dp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	fr = dp.sdi(0) // Rewind directory.
	if fr != frOK {
		return fr
	}
	for {
		fr := dp.f_readdir(&dp.inlineInfo)
		if fr != frOK {
			return fr
		} else if dp.inlineInfo.fsize < 0 {
			return nil // End of directory.
		}
		err := callback(&dp.inlineInfo)
		if err != nil {
			return err
		}
	}
}

// FindFirst rewinds dp and returns the first entry whose name matches
// pattern (glob syntax: '*' matches any run of characters, '?' matches
// exactly one), or io.EOF if the directory has none.
func (dp *Dir) FindFirst(pattern string) (FileInfo, error) {
	fr := dp.obj.validate()
	if fr != frOK {
		return FileInfo{}, fr
	}
	fsys := dp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	dp.pattern = pattern
	if fr = dp.sdi(0); fr != frOK {
		return FileInfo{}, fr
	}
	return dp.findNextLocked()
}

// FindNext returns the next entry matching the pattern set by the most
// recent FindFirst call, or io.EOF once exhausted.
func (dp *Dir) FindNext() (FileInfo, error) {
	fr := dp.obj.validate()
	if fr != frOK {
		return FileInfo{}, fr
	}
	fsys := dp.obj.fs
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return dp.findNextLocked()
}

func (dp *Dir) findNextLocked() (FileInfo, error) {
	for {
		fr := dp.f_readdir(&dp.inlineInfo)
		if fr != frOK {
			return FileInfo{}, fr
		}
		if dp.inlineInfo.fsize < 0 {
			return FileInfo{}, io.EOF
		}
		if matchPattern(dp.pattern, str(dp.inlineInfo.fname[:])) ||
			matchPattern(dp.pattern, str(dp.inlineInfo.altname[:])) {
			return dp.inlineInfo, nil
		}
	}
}

// Mkdir creates a new, empty subdirectory at path.
func (fsys *FS) Mkdir(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fr := fsys.f_mkdir(path); fr != frOK {
		return fr
	}
	return nil
}

// Remove deletes the file or empty directory at path.
func (fsys *FS) Remove(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fr := fsys.f_unlink(path); fr != frOK {
		return fr
	}
	return nil
}

// Rename moves or renames oldPath to newPath, which must not already exist.
func (fsys *FS) Rename(oldPath, newPath string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fr := fsys.f_rename(oldPath, newPath); fr != frOK {
		return fr
	}
	return nil
}

// Stat returns the metadata for the entry at path without opening it.
func (fsys *FS) Stat(path string) (FileInfo, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var fi FileInfo
	if fr := fsys.f_stat(path, &fi); fr != frOK {
		return fi, fr
	}
	return fi, nil
}

// Chmod applies attr, masked to the read-only/hidden/system/archive
// bits, to the entry at path.
func (fsys *FS) Chmod(path string, attr byte) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fr := fsys.f_chmod(path, attr, amRDO|amHID|amSYS|amARC); fr != frOK {
		return fr
	}
	return nil
}

// Chdir changes the current directory used to resolve relative paths
// passed to OpenFile, OpenDir, Mkdir, Remove, Rename, Stat and Chmod.
// Mount resets it to the root.
func (fsys *FS) Chdir(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var dp dir
	dp.obj.fs = fsys
	fr := dp.follow_path(path)
	if fr != frOK {
		return fr
	}
	if dp.fn[nsFLAG]&nsNONAME != 0 {
		fsys.cdir = dp.obj.sclust
		return nil
	}
	if fsys.win[dp.ofs+dirAttrOff]&amDIR == 0 {
		return frNoDir
	}
	fsys.cdir = dp.start_cluster()
	return nil
}

// Getwd returns the absolute path of the current directory set by Chdir.
func (fsys *FS) Getwd() (string, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fsys.cdir == 0 {
		return "/", nil
	}
	var segments []string
	cur := fsys.cdir
	for cur != 0 {
		var dd dir
		dd.obj = objid{fs: fsys, sclust: cur}
		if fr := dd.sdi(sizeDirEntry); fr != frOK { // The ".." entry is the directory's second.
			return "", fr
		}
		if fr := fsys.move_window(dd.sect); fr != frOK {
			return "", fr
		}
		parent := uint32(fsys.window_u16(uint16(dd.ofs)+dirFstClusHIOff))<<16 |
			uint32(fsys.window_u16(uint16(dd.ofs)+dirFstClusLOOff))
		name, fr := findChildName(fsys, parent, cur)
		if fr != frOK {
			return "", fr
		}
		segments = append(segments, name)
		cur = parent
	}
	var sb strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(segments[i])
	}
	return sb.String(), nil
}

// findChildName scans parentClust for the subdirectory entry whose start
// cluster is targetClust, returning its short display name. Used by
// Getwd, which only needs a name good enough to re-resolve the path, not
// the original long name (the same simplification f_stat makes).
func findChildName(fsys *FS, parentClust, targetClust uint32) (string, fileResult) {
	var dd dir
	dd.obj = objid{fs: fsys, sclust: parentClust}
	if fr := dd.sdi(0); fr != frOK {
		return "", fr
	}
	for {
		fr := fsys.move_window(dd.sect)
		if fr != frOK {
			return "", fr
		}
		ent := dd.window_dirent()
		b := ent[0]
		if b == 0 {
			return "", frNoPath
		}
		attr := ent[dirAttrOff] & amMASK
		if b != 0xE5 && attr&amDIR != 0 && attr&amVOL == 0 && ent[0] != '.' {
			hi := uint32(binary.LittleEndian.Uint16(ent[dirFstClusHIOff:]))
			lo := uint32(binary.LittleEndian.Uint16(ent[dirFstClusLOOff:]))
			if hi<<16|lo == targetClust {
				return sfnToDisplay(ent[0:11]), frOK
			}
		}
		if fr = dd.dir_next(false); fr != frOK {
			return "", frNoPath
		}
	}
}

// Label returns the volume label stored in the root directory's
// ATTR_VOLUME_ID entry, or "" if none is set.
func (fsys *FS) Label() (string, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var dp dir
	dp.obj = objid{fs: fsys}
	if fr := dp.sdi(0); fr != frOK {
		return "", fr
	}
	for {
		fr := fsys.move_window(dp.sect)
		if fr != frOK {
			return "", fr
		}
		ent := dp.window_dirent()
		if ent[0] == 0 {
			return "", nil
		}
		if ent[0] != 0xE5 && ent[dirAttrOff]&amMASK == amVOL {
			return strings.TrimRight(string(ent[0:11]), " "), nil
		}
		if fr = dp.dir_next(false); fr != frOK {
			return "", nil
		}
	}
}

// SetLabel writes or replaces the volume label, creating the root
// directory's ATTR_VOLUME_ID entry if none exists.
func (fsys *FS) SetLabel(label string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var dp dir
	dp.obj = objid{fs: fsys}
	if fr := dp.sdi(0); fr != frOK {
		return fr
	}
	for {
		fr := fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		ent := dp.window_dirent()
		if ent[0] != 0 && ent[0] != 0xE5 && ent[dirAttrOff]&amMASK == amVOL {
			writeLabelEntry(ent, label)
			fsys.wflag = 1
			return nil
		}
		if ent[0] == 0 {
			break
		}
		if fr = dp.dir_next(false); fr != frOK {
			break
		}
	}
	if fr := dp.dir_alloc(1); fr != frOK {
		return fr
	}
	if fr := fsys.move_window(dp.sect); fr != frOK {
		return fr
	}
	ent := dp.window_dirent()
	writeLabelEntry(ent, label)
	ent[dirAttrOff] = amVOL
	fsys.wflag = 1
	return nil
}

func writeLabelEntry(ent []byte, label string) {
	for i := range ent[0:11] {
		ent[i] = ' '
	}
	copy(ent[0:11], padSpace(strings.ToUpper(label), 11))
}

// AlternateName returns the alternate name of the file.
func (finfo *FileInfo) AlternateName() string {
	return str(finfo.altname[:])
}

// Name returns the name of the file.
func (finfo *FileInfo) Name() string {
	return str(finfo.fname[:])
}

// Size returns the size of the file in bytes.
func (finfo *FileInfo) Size() int64 {
	return finfo.fsize
}

// ModTime returns the modification time of the file.
func (finfo *FileInfo) ModTime() time.Time {
	return timeFromFAT(finfo.fdate, finfo.ftime)
}

// IsDir returns true if the file is a directory.
func (finfo *FileInfo) IsDir() bool {
	return finfo.fattrib&amDIR != 0
}

// IsReadOnly, IsHidden, IsSystem and IsArchive report the entry's
// corresponding DOS attribute bits.
func (finfo *FileInfo) IsReadOnly() bool { return finfo.fattrib&amRDO != 0 }
func (finfo *FileInfo) IsHidden() bool   { return finfo.fattrib&amHID != 0 }
func (finfo *FileInfo) IsSystem() bool   { return finfo.fattrib&amSYS != 0 }
func (finfo *FileInfo) IsArchive() bool  { return finfo.fattrib&amARC != 0 }

func str(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
