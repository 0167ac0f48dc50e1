package fat

import (
	"encoding/binary"
	"errors"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

type Format uint8

const (
	_FormatUnknown Format = iota
	FormatFAT12
	FormatFAT16
	FormatFAT32
)

// Formatter lays down a fresh FAT12/16/32 volume on a block device. It
// holds no state between calls to Format besides its scratch window
// buffer, so a single Formatter value can be reused across volumes.
type Formatter struct {
	window     []byte
	windowaddr lba
	bd         BlockDevice

	// Logger receives an info-level summary of the chosen geometry once
	// formatting succeeds. A nil Logger (the zero value) stays silent.
	Logger *slog.Logger
}

type FormatConfig struct {
	Label string
	// ClusterSize is the cluster size in bytes. 0 picks a size from the
	// volume's total capacity, following the same table the original
	// driver uses: larger volumes get larger clusters.
	ClusterSize int
	// Format selects FAT12, FAT16 or FAT32. Zero value picks FAT32
	// unless the volume is too small to hold one.
	Format Format
	// NumberOfFATs is 1 or 2; 0 defaults to 2.
	NumberOfFATs uint8
}

// Format writes a boot sector, FAT(s), FSInfo sector (FAT32 only) and an
// empty root directory to bd, covering fsSizeInBlocks blocks of
// blocksize bytes each starting at block 0. It does not write a
// partition table; callers formatting a partitioned disk should offset
// bd or wrap it to present just the target partition.
func (f *Formatter) Format(bd BlockDevice, blocksize, fsSizeInBlocks int, cfg FormatConfig) error {
	if blocksize < 512 || blocksize&(blocksize-1) != 0 {
		return errors.New("fat: block size must be a power of two, at least 512")
	}
	if fsSizeInBlocks <= 32 || bd == nil {
		return errors.New("fat: invalid Format argument")
	}
	if cfg.NumberOfFATs == 0 {
		cfg.NumberOfFATs = 2
	}
	if cfg.NumberOfFATs != 1 && cfg.NumberOfFATs != 2 {
		return errors.New("fat: NumberOfFATs must be 1 or 2")
	}
	hadLabel := cfg.Label != ""
	if cfg.Label == "" {
		cfg.Label = "NO NAME"
	}
	f.window = make([]byte, blocksize)
	f.windowaddr = badLBA
	f.bd = bd

	switch cfg.Format {
	case FormatFAT12, FormatFAT16, FormatFAT32, _FormatUnknown:
		return f.formatFAT(blocksize, fsSizeInBlocks, cfg, hadLabel)
	default:
		return errors.New("fat: unsupported Format value")
	}
}

// formatFAT chooses a cluster size and FAT subtype for the requested
// capacity, then writes the boot sector, FAT tables and (for FAT32) the
// FSInfo sector and root directory cluster.
func (f *Formatter) formatFAT(ss, totalSectors int, cfg FormatConfig, hadLabel bool) error {
	auSize := cfg.ClusterSize
	if auSize == 0 {
		auSize = defaultClusterSize(totalSectors, ss)
	}
	if auSize&(auSize-1) != 0 || auSize < ss {
		return errors.New("fat: cluster size must be a power of two, at least the sector size")
	}
	spc := uint16(auSize / ss) // Sectors per cluster.

	want := cfg.Format
	if want == _FormatUnknown {
		want = FormatFAT32
	}

	const reservedFAT32 = 32
	const reservedFAT1216 = 1

	for {
		wasFAT32 := want == FormatFAT32
		var reserved int
		var nrootdir uint16
		if wasFAT32 {
			reserved = reservedFAT32
			nrootdir = 0
		} else {
			reserved = reservedFAT1216
			nrootdir = 512
		}
		rootSectors := int(nrootdir) * sizeDirEntry / ss
		dataSectors := totalSectors - reserved - rootSectors
		if dataSectors <= 0 {
			return errors.New("fat: volume too small")
		}
		nclusters := dataSectors / int(spc)

		var entsize int
		switch want {
		case FormatFAT32:
			entsize = 4
		case FormatFAT16:
			entsize = 2
		default:
			entsize = 0 // 1.5 bytes, handled specially below.
		}
		var fatsize int
		if entsize != 0 {
			fatsize = (nclusters+2)*entsize + ss - 1
			fatsize /= ss
		} else {
			fatsize = ((nclusters+2)*3/2 + ss - 1) / ss
		}
		sysSectors := reserved + fatsize*int(cfg.NumberOfFATs) + rootSectors
		nclusters = (totalSectors - sysSectors) / int(spc)

		switch {
		case nclusters > clustMaxFAT32:
			return errors.New("fat: volume too large")
		case nclusters > clustMaxFAT16:
			if want != FormatFAT32 && cfg.Format != _FormatUnknown {
				return errors.New("fat: too many clusters for the requested FAT subtype")
			}
			if !wasFAT32 && cfg.Format == _FormatUnknown {
				return errors.New("fat: cluster count fits neither FAT16 nor FAT32 at this cluster size")
			}
			want = FormatFAT32
		case nclusters > clustMaxFAT12:
			if want == FormatFAT32 && cfg.Format == FormatFAT32 {
				break // Caller explicitly asked for FAT32 on a volume this small: honor it.
			}
			if cfg.Format != _FormatUnknown && want != FormatFAT16 {
				return errors.New("fat: too many clusters for the requested FAT subtype")
			}
			want = FormatFAT16
		default:
			if cfg.Format == _FormatUnknown && wasFAT32 {
				want = FormatFAT16 // Recomputed with the FAT16 layout; a count this small then settles on FAT12.
			} else if cfg.Format == _FormatUnknown {
				want = FormatFAT12
			}
		}
		if (want == FormatFAT32) == wasFAT32 {
			return f.writeFAT(ss, totalSectors, spc, fatsize, int(cfg.NumberOfFATs), int(nrootdir), want, cfg.Label, hadLabel)
		}
		// Subtype crossed the 12/16 <-> 32 boundary: its reserved-sector
		// count differs, so geometry must be recomputed once more before writing.
	}
}

func defaultClusterSize(totalSectors, ss int) int {
	bytes := int64(totalSectors) * int64(ss)
	const mb = 1 << 20
	switch {
	case bytes <= 64*mb:
		return 4 * 1024
	case bytes <= 512*mb:
		return 8 * 1024
	case bytes <= 2*1024*mb:
		return 16 * 1024
	case bytes <= 16*1024*mb:
		return 32 * 1024
	default:
		return 64 * 1024
	}
}

func (f *Formatter) writeFAT(ss, totalSectors int, spc uint16, fatsize, nfats, nrootdir int, kind Format, label string, hadLabel bool) error {
	reserved := reservedFor(kind)
	fatbase := reserved
	rootSectors := nrootdir * sizeDirEntry / ss
	dirbase := fatbase + fatsize*nfats
	database := dirbase + rootSectors

	buf := make([]byte, ss)
	bs := biosParamBlock{data: buf}
	bs.data[bsJmpBoot] = 0xEB
	bs.data[bsJmpBoot+1] = 0xFE
	bs.data[bsJmpBoot+2] = 0x90
	bs.SetOEMName("GOFAT1.0")
	bs.SetSectorSize(uint16(ss))
	bs.data[bpbSecPerClus] = byte(spc)
	bs.SetReservedSectors(uint16(reserved))
	bs.SetNumberOfFATs(uint8(nfats))
	bs.SetRootDirEntries(uint16(nrootdir))
	if totalSectors < 0x10000 {
		binary.LittleEndian.PutUint16(buf[bpbTotSec16:], uint16(totalSectors))
	} else {
		bs.SetTotalSectors(uint32(totalSectors))
	}
	buf[bpbMedia] = 0xF8

	serial := uuid.New()
	binary.LittleEndian.PutUint32(buf[bsVolID32:], binary.LittleEndian.Uint32(serial[0:4]))

	if kind == FormatFAT32 {
		binary.LittleEndian.PutUint32(buf[bpbFATSz32:], uint32(fatsize))
		bs.SetRootCluster(2)
		binary.LittleEndian.PutUint16(buf[bpbFSInfo32:], 1)
		binary.LittleEndian.PutUint16(buf[bpbBkBootSec32:], 6)
		buf[bsBootSig32] = 0x29
		copy(buf[bsFilSysType32:], "FAT32   ")
	} else {
		binary.LittleEndian.PutUint16(buf[bpbFATSz16:], uint16(fatsize))
		buf[bsBootSig32] = 0x29
		name := "FAT16   "
		if kind == FormatFAT12 {
			name = "FAT12   "
		}
		copy(buf[bsFilSysType32:], name)
	}
	bs.SetVolumeLabel(label)
	binary.LittleEndian.PutUint16(buf[bs55AA:], 0xAA55)

	if err := f.write(0, buf); err != nil {
		return err
	}
	if kind == FormatFAT32 {
		if err := f.write(6, buf); err != nil { // Backup boot sector.
			return err
		}
		fsi := make([]byte, ss)
		binary.LittleEndian.PutUint32(fsi[fsiLeadSig:], fsiLeadSigValue)
		binary.LittleEndian.PutUint32(fsi[fsiStrucSig:], fsiStrucSigValue)
		nclusters := (totalSectors - database) / int(spc)
		binary.LittleEndian.PutUint32(fsi[fsiFree_Count:], uint32(nclusters-1)) // Cluster 2 reserved for root.
		binary.LittleEndian.PutUint32(fsi[fsiNxt_Free:], 3)
		binary.LittleEndian.PutUint16(fsi[bs55AA:], 0xAA55)
		if err := f.write(1, fsi); err != nil {
			return err
		}
		if err := f.write(7, fsi); err != nil {
			return err
		}
	}

	zero := make([]byte, ss)
	for t := 0; t < nfats; t++ {
		base := fatbase + t*fatsize
		for i := 0; i < fatsize; i++ {
			if err := f.write(int64(base+i), zero); err != nil {
				return err
			}
		}
		entrySize := 4
		if kind == FormatFAT16 {
			entrySize = 2
		} else if kind == FormatFAT12 {
			entrySize = 0
		}
		first := make([]byte, ss)
		switch entrySize {
		case 4:
			binary.LittleEndian.PutUint32(first[0:], 0xFFFFFFF8)
			binary.LittleEndian.PutUint32(first[4:], eocFAT32)
			if kind == FormatFAT32 {
				binary.LittleEndian.PutUint32(first[8:], eocFAT32) // Root directory's cluster 2, EOC.
			}
		case 2:
			binary.LittleEndian.PutUint16(first[0:], 0xFFF8)
			binary.LittleEndian.PutUint16(first[2:], eocFAT16)
		default:
			first[0], first[1], first[2] = 0xF8, 0xFF, 0xFF
		}
		if err := f.write(int64(base), first); err != nil {
			return err
		}
	}

	for i := 0; i < rootSectors; i++ {
		if err := f.write(int64(dirbase+i), zero); err != nil {
			return err
		}
	}
	if kind == FormatFAT32 {
		for i := 0; i < int(spc); i++ {
			if err := f.write(int64(database+i), zero); err != nil {
				return err
			}
		}
	}
	if hadLabel {
		labelSector := dirbase
		if kind == FormatFAT32 {
			labelSector = database
		}
		entbuf := make([]byte, ss)
		ent := entbuf[0:sizeDirEntry]
		writeLabelEntry(ent, label)
		ent[dirAttrOff] = amVOL
		if err := f.write(int64(labelSector), entbuf); err != nil {
			return err
		}
	}
	if f.Logger != nil {
		f.Logger.Info("formatted volume",
			slog.String("capacity", humanize.Bytes(uint64(totalSectors)*uint64(ss))),
			slog.String("cluster_size", humanize.Bytes(uint64(spc)*uint64(ss))),
			slog.Int("fat_subtype", int(kind)),
		)
	}
	return nil
}

func reservedFor(kind Format) int {
	if kind == FormatFAT32 {
		return 32
	}
	return 1
}

func (f *Formatter) write(sector int64, data []byte) error {
	return f.bd.WriteBlocks(data, sector)
}

func (f *Formatter) move_window(addr lba) error {
	if addr != f.windowaddr {
		if err := f.bd.ReadBlocks(f.window, int64(addr)); err != nil {
			return err
		}
		f.windowaddr = addr
	}
	return nil
}
