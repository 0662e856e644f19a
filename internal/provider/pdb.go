package provider

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// PDB is the built-in provider for PDB symbol files. It reads only as much
// of the MSF container as identity verification needs: the superblock, the
// stream directory, and the header of the PDB info stream. Name and line
// queries require a full native engine and return ErrNotSupported.
type PDB struct{}

// msfMagic is the MSF 7.00 signature at the start of every modern PDB.
var msfMagic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")

const superBlockSize = 56

// infoStreamIndex is the fixed stream number of the PDB info stream.
const infoStreamIndex = 1

// infoHeaderSize covers version, signature, age and the GUID.
const infoHeaderSize = 28

type superBlock struct {
	blockSize         uint32
	numDirectoryBytes uint32
	blockMapAddr      uint32
}

// Open parses the file's MSF structure and captures its GUID and age.
func (PDB) Open(path string) (Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sb, err := readSuperBlock(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	info, err := readInfoStream(f, sb)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &pdbSession{
		path: path,
		guid: info.guid,
		age:  info.age,
	}, nil
}

type pdbSession struct {
	path string
	guid uuid.UUID
	age  uint32
}

func (s *pdbSession) Identity() (uuid.UUID, uint32, error) {
	return s.guid, s.age, nil
}

func (s *pdbSession) NameForAddress(uint64) (string, error) {
	return "", ErrNotSupported
}

func (s *pdbSession) SourceLineForAddress(uint64) (SourceLocation, error) {
	return SourceLocation{}, ErrNotSupported
}

func (s *pdbSession) SourceFiles() ([]SourceFileRecord, error) {
	return nil, ErrNotSupported
}

func (s *pdbSession) Close() error { return nil }

func readSuperBlock(f *os.File) (*superBlock, error) {
	buf := make([]byte, superBlockSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read superblock: %w", err)
	}

	if !bytes.Equal(buf[:32], msfMagic) {
		return nil, fmt.Errorf("not a PDB file (bad MSF magic)")
	}

	sb := &superBlock{
		blockSize:         binary.LittleEndian.Uint32(buf[32:36]),
		numDirectoryBytes: binary.LittleEndian.Uint32(buf[44:48]),
		blockMapAddr:      binary.LittleEndian.Uint32(buf[52:56]),
	}

	switch sb.blockSize {
	case 512, 1024, 2048, 4096:
	default:
		return nil, fmt.Errorf("invalid MSF block size %d", sb.blockSize)
	}

	return sb, nil
}

type pdbInfo struct {
	age  uint32
	guid uuid.UUID
}

// readInfoStream walks the stream directory far enough to locate stream 1
// and decodes its fixed header.
func readInfoStream(f *os.File, sb *superBlock) (*pdbInfo, error) {
	dir, err := readStreamDirectory(f, sb)
	if err != nil {
		return nil, err
	}

	numStreams := binary.LittleEndian.Uint32(dir)
	if numStreams <= infoStreamIndex {
		return nil, fmt.Errorf("PDB info stream missing (%d streams)", numStreams)
	}

	sizes := make([]uint32, numStreams)
	off := 4
	for i := range sizes {
		if off+4 > len(dir) {
			return nil, fmt.Errorf("stream directory truncated")
		}
		sizes[i] = binary.LittleEndian.Uint32(dir[off:])
		off += 4
	}

	// Block lists follow the sizes, one list per stream. A size of
	// 0xFFFFFFFF marks a deleted stream with no blocks.
	var infoBlocks []uint32
	for i, size := range sizes {
		if size == 0xFFFFFFFF {
			continue
		}

		n := int((size + sb.blockSize - 1) / sb.blockSize)
		if uint32(i) == infoStreamIndex {
			infoBlocks = make([]uint32, n)
			for j := 0; j < n; j++ {
				if off+4 > len(dir) {
					return nil, fmt.Errorf("stream directory truncated")
				}
				infoBlocks[j] = binary.LittleEndian.Uint32(dir[off:])
				off += 4
			}
			continue
		}

		off += 4 * n
	}

	size := sizes[infoStreamIndex]
	if size == 0xFFFFFFFF || size < infoHeaderSize || len(infoBlocks) == 0 {
		return nil, fmt.Errorf("PDB info stream too small (%d bytes)", size)
	}

	// The fixed header never spans blocks: the minimum block size is 512.
	buf := make([]byte, infoHeaderSize)
	if _, err := f.ReadAt(buf, int64(infoBlocks[0])*int64(sb.blockSize)); err != nil {
		return nil, fmt.Errorf("read PDB info stream: %w", err)
	}

	var raw [16]byte
	copy(raw[:], buf[12:28])

	return &pdbInfo{
		age:  binary.LittleEndian.Uint32(buf[8:12]),
		guid: guidFromWindows(raw),
	}, nil
}

func readStreamDirectory(f *os.File, sb *superBlock) ([]byte, error) {
	numDirBlocks := (sb.numDirectoryBytes + sb.blockSize - 1) / sb.blockSize

	blockMap := make([]byte, 4*numDirBlocks)
	if _, err := f.ReadAt(blockMap, int64(sb.blockMapAddr)*int64(sb.blockSize)); err != nil {
		return nil, fmt.Errorf("read block map: %w", err)
	}

	dir := make([]byte, sb.numDirectoryBytes)
	read := 0
	for i := uint32(0); i < numDirBlocks; i++ {
		block := binary.LittleEndian.Uint32(blockMap[4*i:])
		n := int(sb.blockSize)
		if read+n > len(dir) {
			n = len(dir) - read
		}
		if _, err := f.ReadAt(dir[read:read+n], int64(block)*int64(sb.blockSize)); err != nil {
			return nil, fmt.Errorf("read directory block %d: %w", block, err)
		}
		read += n
	}

	return dir, nil
}

// guidFromWindows converts an on-disk Windows GUID (little-endian first
// three fields) to the big-endian byte order uuid uses, so that the UUID's
// hex form matches the symbol-store index convention.
func guidFromWindows(b [16]byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:])
	return u
}
