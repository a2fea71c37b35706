package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Field sizes shared by all header versions.
const (
	BoardNameLength    = 31 // usable characters, field is 32 bytes with terminator
	BoardVersionLength = 31
	SerialLength       = 32
	USIDLength         = 32
	CPUIDLength        = 32
	MACLength          = 6
	ModuleCount        = 16 // v1 only
)

// Identity field offsets, identical across versions.
const (
	offBoardName    = 12
	offBoardVersion = 44
	offSerial       = 76
	offUSID         = 108
	offCPUID        = 140
	offMAC          = 172
	offModules      = 180 // v1
	offSignature    = 180 // v3
	offTimestamp    = 244 // v3
)

// SignatureAlgorithm selects how the v3 signature field is to be
// interpreted. The signature bytes themselves are opaque to this
// package; only their length depends on the algorithm.
type SignatureAlgorithm uint8

const (
	SigNone      SignatureAlgorithm = 0 // no signature
	SigSecp192r1 SignatureAlgorithm = 1 // ECDSA secp192r1, r||s
	SigSecp256r1 SignatureAlgorithm = 2 // ECDSA secp256r1, r||s
)

// SignatureSize returns the number of meaningful signature bytes for
// the algorithm. The on-device field is always SignatureFieldSize bytes,
// zero-padded.
func (a SignatureAlgorithm) SignatureSize() int {
	switch a {
	case SigSecp192r1:
		return 48
	case SigSecp256r1:
		return 64
	default:
		return 0
	}
}

func (a SignatureAlgorithm) String() string {
	switch a {
	case SigNone:
		return "none"
	case SigSecp192r1:
		return "secp192r1"
	case SigSecp256r1:
		return "secp256r1"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Header is a decoded EEPROM identity header. The Version field
// discriminates which of the three fixed layouts the record came from
// and which optional fields are meaningful: Modules for v1 only,
// SignatureAlgorithm/Signature/Timestamp for v3 only.
type Header struct {
	Version Version

	BoardName    string
	BoardVersion string
	Serial       string
	USID         string
	CPUID        string
	MAC          [MACLength]byte

	// v1 only
	Modules [ModuleCount]uint16

	// v3 only
	SignatureAlgorithm SignatureAlgorithm
	Signature          [SignatureFieldSize]byte
	Timestamp          int64

	// Checksum as stored on the device. Refreshed by Encode.
	Checksum uint32
}

// Decode parses a raw header. The version is derived from the common
// prefix before any other field is trusted. Decode does not verify the
// checksum; use VerifyChecksum for that.
func Decode(buf []byte) (*Header, error) {
	v, err := DetectVersion(buf)
	if err != nil {
		return nil, err
	}
	size, _ := Size(v)
	if len(buf) < size {
		return nil, ErrBufferTooSmall
	}

	h := &Header{
		Version:      v,
		BoardName:    getString(buf[offBoardName : offBoardName+BoardNameLength+1]),
		BoardVersion: getString(buf[offBoardVersion : offBoardVersion+BoardVersionLength+1]),
		Serial:       getString(buf[offSerial : offSerial+SerialLength]),
		USID:         getString(buf[offUSID : offUSID+USIDLength]),
		CPUID:        getString(buf[offCPUID : offCPUID+CPUIDLength]),
		Checksum:     binary.LittleEndian.Uint32(buf[size-ChecksumSize : size]),
	}
	copy(h.MAC[:], buf[offMAC:offMAC+MACLength])

	switch v {
	case V1:
		for i := 0; i < ModuleCount; i++ {
			h.Modules[i] = binary.LittleEndian.Uint16(buf[offModules+2*i:])
		}
	case V3:
		h.SignatureAlgorithm = SignatureAlgorithm(buf[MagicLength+1])
		copy(h.Signature[:], buf[offSignature:offSignature+SignatureFieldSize])
		h.Timestamp = int64(binary.LittleEndian.Uint64(buf[offTimestamp : offTimestamp+8]))
	}

	return h, nil
}

// Encode serializes the header into a freshly allocated buffer of the
// version's fixed size, recomputing the trailing checksum. The stored
// Checksum field is updated to the new value.
func (h *Header) Encode() ([]byte, error) {
	size, err := Size(h.Version)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	copy(buf, Magic)
	buf[MagicLength] = byte(h.Version)

	if err := putString(buf[offBoardName:offBoardName+BoardNameLength+1], h.BoardName, "boardname"); err != nil {
		return nil, err
	}
	if err := putString(buf[offBoardVersion:offBoardVersion+BoardVersionLength+1], h.BoardVersion, "boardversion"); err != nil {
		return nil, err
	}
	if err := putString(buf[offSerial:offSerial+SerialLength], h.Serial, "serial"); err != nil {
		return nil, err
	}
	if err := putString(buf[offUSID:offUSID+USIDLength], h.USID, "usid"); err != nil {
		return nil, err
	}
	if err := putString(buf[offCPUID:offCPUID+CPUIDLength], h.CPUID, "cpuid"); err != nil {
		return nil, err
	}
	copy(buf[offMAC:], h.MAC[:])

	switch h.Version {
	case V1:
		for i := 0; i < ModuleCount; i++ {
			binary.LittleEndian.PutUint16(buf[offModules+2*i:], h.Modules[i])
		}
	case V3:
		buf[MagicLength+1] = byte(h.SignatureAlgorithm)
		copy(buf[offSignature:], h.Signature[:])
		binary.LittleEndian.PutUint64(buf[offTimestamp:], uint64(h.Timestamp))
	}

	if err := UpdateChecksum(buf); err != nil {
		return nil, err
	}
	h.Checksum = binary.LittleEndian.Uint32(buf[size-ChecksumSize : size])

	return buf, nil
}

// getString decodes a fixed-size null-terminated field. Bytes past the
// first terminator are ignored.
func getString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// putString encodes s into a fixed-size field, leaving at least one
// terminating zero byte.
func putString(field []byte, s, name string) error {
	if len(s) > len(field)-1 {
		return fmt.Errorf("header: %s too long: %d bytes (max %d)", name, len(s), len(field)-1)
	}
	copy(field, s)
	return nil
}
