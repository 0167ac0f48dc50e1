package fat

// Boot sector / BIOS Parameter Block field offsets. Common to FAT12/16/32;
// the FAT32-only extended fields begin at bpbFATSz32.
const (
	bsJmpBoot  = 0
	bsOEMName  = 3
	bpbBytsPerSec = 11
	bpbSecPerClus = 13
	bpbRsvdSecCnt = 14
	bpbNumFATs    = 16
	bpbRootEntCnt = 17
	bpbTotSec16   = 19
	bpbMedia      = 21
	bpbFATSz16    = 22
	bpbSecPerTrk  = 24
	bpbNumHeads   = 26
	bpbHiddSec    = 28
	bpbTotSec32   = 32

	// FAT32 extended BPB, starts where FAT12/16's BS_* fields would be.
	bpbFATSz32    = 36
	bpbExtFlags32 = 40
	bpbFSVer32    = 42
	bpbRootClus32 = 44
	bpbFSInfo32   = 48
	bpbBkBootSec32 = 50

	bsDrvNum32      = 64
	bsBootSig32     = 66
	bsVolID32       = 67
	bsVolLab32      = 71
	bsFilSysType32  = 82
	bsBootCode32    = 90
	bs55AA          = 510

	offsetMBRTable = 446 // Offset of the first MBR partition table entry.
)

// FSInfo sector field offsets (FAT32 only).
const (
	fsiLeadSig    = 0
	fsiStrucSig   = 484
	fsiFree_Count = 488
	fsiNxt_Free   = 492

	fsiLeadSigValue  = 0x41615252
	fsiStrucSigValue = 0x61417272
	fsiTrailSigValue = 0xAA550000
)

// 32-byte directory entry field offsets (SFN form).
const (
	dirNameOff       = 0
	dirAttrOff       = 11
	dirNTresOff      = 12
	dirCrtTime10Off  = 13
	dirCrtTimeOff    = 14 // 2 bytes time, followed immediately by 2 bytes date.
	dirCrtDateOff    = 16
	dirLstAccDateOff = 18
	dirFstClusHIOff  = 20
	dirModTimeOff    = 22 // 2 bytes time, followed immediately by 2 bytes date.
	dirWrtDateOff    = 24
	dirFstClusLOOff  = 26
	dirFileSizeOff   = 28

	sizeDirEntry = 32 // Size in bytes of one directory entry, SFN or LFN.
)

// Attribute byte bit values, stored at dirAttrOff.
const (
	amRDO  = 0x01
	amHID  = 0x02
	amSYS  = 0x04
	amVOL  = 0x08
	amLFN  = 0x0F // amRDO|amHID|amSYS|amVOL, marks an LFN fragment entry.
	amDIR  = 0x10
	amARC  = 0x20
	amMASK = 0x3F
)

// 32-byte LFN directory entry field offsets.
const (
	ldirOrdOff        = 0
	ldirAttrOff       = 11
	ldirTypeOff       = 12
	ldirChksumOff     = 13
	ldirFstClusLO_Off = 26

	ldirLastLongEntry = 0x40 // ORed into the ordinal of the first LFN entry on disk.
	ldirOrdMask       = 0x3F
	lfnCharsPerEntry  = 13
)

// fn[12] status byte (NS_*) bit values and the index of the status byte
// within create_name's working buffer.
const (
	nsFLAG   = 11
	nsLOSS   = 0x01 // Out of 8.3 format.
	nsLFN    = 0x02 // Force LFN entry generation.
	nsLAST   = 0x04 // Last segment of the path.
	nsBODY   = 0x08 // Lowercase flag for body (NT case bit).
	nsEXT    = 0x10 // Lowercase flag for extension (NT case bit).
	nsDOT    = 0x20 // Dot entry (".", "..").
	nsNOLFN  = 0x40 // Skip LFN entry even if needed (SFN only contract).
	nsNONAME = 0x80 // Origin directory itself, no name component.
)

// Cluster-count classification thresholds, inclusive upper bounds.
const (
	clustMaxFAT12 = 4084
	clustMaxFAT16 = 65524
	clustMaxFAT32 = 268435444

	eocFAT12 = 0x0FFF
	eocFAT16 = 0xFFFF
	eocFAT32 = 0x0FFFFFFF
	mask28bits = 0x0FFFFFFF
)

// Directory extent limits.
const (
	maxDIR = 0x200000 // 2 MiB (65536 entries of 32 bytes); dir_next stops at this byte offset.
)

// badLBA is the sentinel sector address stored in winsect when the window
// holds no valid sector (after invalidate or a failed read).
const badLBA lba = 0xFFFFFFFF

// noCluster is the sentinel used where 0 means "unallocated" and a search
// failed to find any free cluster.
const noCluster uint32 = 0
