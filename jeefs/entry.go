package jeefs

import (
	"bytes"
	"encoding/binary"
)

const (
	// EntrySize is the fixed size of a file entry on the device. The
	// entry is immediately followed by its payload bytes.
	EntrySize = 24

	// NameLength is the maximum usable file name length. The name field
	// holds one more byte for the terminator.
	NameLength = 15
)

// Entry field offsets.
const (
	offName     = 0  // 16 bytes, null-terminated
	offDataSize = 16 // uint16
	offChecksum = 18 // uint32, CRC32 of the payload only
	offNext     = 22 // uint16, absolute offset of the next entry, 0 = end
)

// entry is one decoded file-chain record.
type entry struct {
	name     [NameLength + 1]byte
	dataSize uint16
	checksum uint32
	next     uint16
}

func decodeEntry(buf []byte) entry {
	var e entry
	copy(e.name[:], buf[offName:offName+NameLength+1])
	e.dataSize = binary.LittleEndian.Uint16(buf[offDataSize:])
	e.checksum = binary.LittleEndian.Uint32(buf[offChecksum:])
	e.next = binary.LittleEndian.Uint16(buf[offNext:])
	return e
}

func (e *entry) encode() []byte {
	buf := make([]byte, EntrySize)
	copy(buf[offName:], e.name[:])
	binary.LittleEndian.PutUint16(buf[offDataSize:], e.dataSize)
	binary.LittleEndian.PutUint32(buf[offChecksum:], e.checksum)
	binary.LittleEndian.PutUint16(buf[offNext:], e.next)
	return buf
}

// Name returns the stored name up to the first terminator.
func (e *entry) Name() string {
	if i := bytes.IndexByte(e.name[:], 0); i >= 0 {
		return string(e.name[:i])
	}
	return string(e.name[:NameLength])
}

func (e *entry) setName(name string) {
	e.name = [NameLength + 1]byte{}
	copy(e.name[:NameLength], name)
}

// endsChain reports whether the slot at off terminates the usable part
// of the chain: either it was never written (empty name byte or empty
// size word) or its next pointer disagrees with the offset computed
// from its own size, which marks structural corruption.
func (e *entry) endsChain(off uint16) bool {
	if byteIsEmpty(e.name[0]) || wordIsEmpty(e.dataSize) {
		return true
	}
	if !wordIsEmpty(e.next) && int(e.next) != int(off)+EntrySize+int(e.dataSize) {
		return true
	}
	return false
}
