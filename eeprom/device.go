// Package eeprom provides byte-addressable access to EEPROM images.
//
// A Device exposes a fixed-size byte region through bounded ReadAt and
// WriteAt calls. Offsets and lengths live in a 16-bit address space, so
// an image is at most 65535 bytes. Reads and writes that would cross the
// image end are truncated and report io.EOF alongside the byte count.
//
// Two backends are provided: FileDevice operates directly on a backing
// file, MemDevice keeps an in-memory mirror and writes it through to the
// file on every update.
package eeprom

import (
	"errors"
	"io"
)

// MaxImageSize is the largest addressable image, bounded by the 16-bit
// offsets used in the on-device format.
const MaxImageSize = 0xFFFF

var (
	ErrImageTooLarge = errors.New("eeprom: backing file exceeds 16-bit address space")
	ErrNoSize        = errors.New("eeprom: no backing file and no size given")
	ErrAlreadyOpen   = errors.New("eeprom: image is already open")
)

// Device is an open EEPROM image. Implementations bound every transfer
// to the image size; the image is exclusively owned by the caller until
// Close.
type Device interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Size returns the total image size in bytes.
	Size() uint16
}

// clampRange bounds a transfer of want bytes at off against size.
// Returns the number of bytes that fit; ok is false when the offset
// itself is out of range.
func clampRange(off int64, want, size int) (n int, ok bool) {
	if off < 0 || off >= int64(size) {
		return 0, false
	}
	n = size - int(off)
	if n > want {
		n = want
	}
	return n, true
}
