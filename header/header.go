package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Magic is the 8-byte null-terminated identity string at offset 0 of
// every header version.
const Magic = "JETHOME\x00"

const (
	// MagicLength is the size of the magic field in bytes.
	MagicLength = 8

	// PrefixSize is the number of bytes needed to detect the header
	// version: magic, version byte and three reserved bytes. A read of
	// this size is safe regardless of which version is present.
	PrefixSize = 12

	// ChecksumSize is the size of the trailing CRC32 field.
	ChecksumSize = 4

	// SignatureFieldSize is the size of the v3 signature field. Shorter
	// signatures are zero-padded to this size.
	SignatureFieldSize = 64
)

// Version numbers a header layout.
type Version uint8

// Known header versions.
const (
	V1 Version = 1 // 512 bytes, identity fields plus 16 module IDs
	V2 Version = 2 // 256 bytes, identity fields only
	V3 Version = 3 // 256 bytes, v2 layout with signature and timestamp
)

var (
	ErrInvalidMagic       = errors.New("header: invalid magic")
	ErrUnsupportedVersion = errors.New("header: unsupported version")
	ErrBufferTooSmall     = errors.New("header: buffer too small")
	ErrChecksumMismatch   = errors.New("header: checksum mismatch")
)

// Size returns the fixed size in bytes of the given header version.
func Size(v Version) (int, error) {
	switch v {
	case V1:
		return 512, nil
	case V2, V3:
		return 256, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
}

// Checksum computes the CRC32 used throughout the format. IEEE
// polynomial, compatible with zlib's crc32().
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// DetectVersion reads the common prefix of buf and returns the header
// version found there. Only the first PrefixSize bytes are inspected,
// so buf may be a partial header.
func DetectVersion(buf []byte) (Version, error) {
	if len(buf) < PrefixSize {
		return 0, ErrBufferTooSmall
	}
	if string(buf[:MagicLength]) != Magic {
		return 0, ErrInvalidMagic
	}
	v := Version(buf[MagicLength])
	if _, err := Size(v); err != nil {
		return 0, err
	}
	return v, nil
}

// VerifyChecksum re-derives the version of the header in buf and checks
// its trailing CRC32 against the checksum of the covered range. A stored
// checksum of zero means the header was never finalized and fails
// verification.
func VerifyChecksum(buf []byte) error {
	v, err := DetectVersion(buf)
	if err != nil {
		return err
	}
	size, _ := Size(v)
	if len(buf) < size {
		return ErrBufferTooSmall
	}

	coverage := size - ChecksumSize
	stored := binary.LittleEndian.Uint32(buf[coverage:size])
	if stored == 0 {
		return ErrChecksumMismatch
	}
	if calc := Checksum(buf[:coverage]); calc != stored {
		return fmt.Errorf("%w: stored %#08x, computed %#08x", ErrChecksumMismatch, stored, calc)
	}
	return nil
}

// UpdateChecksum recomputes the header checksum in buf and stores it in
// the trailing CRC32 field.
func UpdateChecksum(buf []byte) error {
	v, err := DetectVersion(buf)
	if err != nil {
		return err
	}
	size, _ := Size(v)
	if len(buf) < size {
		return ErrBufferTooSmall
	}

	coverage := size - ChecksumSize
	binary.LittleEndian.PutUint32(buf[coverage:size], Checksum(buf[:coverage]))
	return nil
}

// Init writes a fresh header of the given version into buf: the header
// region is zero-filled, magic and version are set, all identity fields
// are left zero (for v3 that means signature algorithm "none", zero
// signature and zero timestamp) and the checksum is computed.
func Init(buf []byte, v Version) error {
	size, err := Size(v)
	if err != nil {
		return err
	}
	if len(buf) < size {
		return ErrBufferTooSmall
	}

	for i := 0; i < size; i++ {
		buf[i] = 0
	}
	copy(buf, Magic)
	buf[MagicLength] = byte(v)

	return UpdateChecksum(buf)
}
