// Package jeefs implements the JEEFS file chain stored on small EEPROM
// images.
//
// An image starts with a versioned identity header (package header) and
// continues with a singly-linked chain of named files. Each file is a
// fixed 24-byte entry followed by its payload; entries link to their
// successor by absolute offset, so the chain is always contiguous and a
// deleted file's space is reclaimed by shifting everything after it
// left.
//
// Base principles:
//   - file names are limited to NameLength characters
//   - files cannot be zero size and cannot be fragmented
//   - an overwrite with a different size is delete followed by add
//   - every delete compacts the chain in place
//
// The header version is re-read on every operation, so a reformat
// between calls is always honored. Operations are synchronous and the
// device is assumed to be exclusively owned; there is no internal
// locking and no retry logic.
package jeefs

import (
	"errors"
	"fmt"
	"io"

	"github.com/jethome-iot/go-jeefs/eeprom"
	"github.com/jethome-iot/go-jeefs/header"
)

// EmptyByte is the value written into erased regions of the image.
const EmptyByte = 0x00

// FS is a file chain over an open EEPROM device.
type FS struct {
	dev eeprom.Device
	log Logger
}

// New returns a file system over dev. The device stays owned by the
// caller and is not closed by the FS.
func New(dev eeprom.Device, opts ...Option) *FS {
	f := &FS{
		dev: dev,
		log: nopLogger{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Info describes one file found in the chain.
type Info struct {
	Name     string
	Size     uint16
	Checksum uint32
	Offset   uint16
}

// Find walks the chain for a file with the given name. Note that
// offsets are not stable: any Delete moves every later entry.
func (f *FS) Find(name string) (Info, error) {
	if err := checkName(name); err != nil {
		return Info{}, err
	}
	e, off, err := f.find(name)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:     e.Name(),
		Size:     e.dataSize,
		Checksum: e.checksum,
		Offset:   off,
	}, nil
}

// List collects the names of all files in chain order, at most max of
// them. A max of zero or less means no limit. A full result is not an
// error.
func (f *FS) List(max int) ([]string, error) {
	hs, err := f.headerSize()
	if err != nil {
		return nil, err
	}

	var names []string
	cur := hs
	for max <= 0 || len(names) < max {
		e, err := f.readEntry(cur)
		if err != nil {
			break
		}
		if e.endsChain(cur) {
			break
		}
		names = append(names, e.Name())
		if e.next == 0 {
			break
		}
		cur = e.next
	}
	return names, nil
}

// Read copies the file's payload into buf and returns the number of
// bytes read, which always equals the stored file size.
func (f *FS) Read(name string, buf []byte) (int, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, ErrBufferInvalid
	}

	e, off, err := f.find(name)
	if err != nil {
		return 0, err
	}
	if int(e.dataSize) > len(buf) {
		return 0, fmt.Errorf("%w: file %q needs %d bytes", ErrBufferInvalid, name, e.dataSize)
	}

	if err := f.readAt(buf[:e.dataSize], int64(off)+EntrySize); err != nil {
		return 0, err
	}
	return int(e.dataSize), nil
}

// Write overwrites an existing file. If the new payload has the same
// size as the stored one it is written in place and only the entry's
// data checksum changes; otherwise the file is deleted and re-added,
// which keeps the chain contiguous but moves the entry.
func (f *FS) Write(name string, data []byte) (int, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if len(data) == 0 || len(data) > eeprom.MaxImageSize {
		return 0, ErrBufferInvalid
	}

	e, off, err := f.find(name)
	if err != nil {
		return 0, err
	}

	if int(e.dataSize) != len(data) {
		if err := f.Delete(name); err != nil {
			return 0, err
		}
		return f.Add(name, data)
	}

	if err := f.writeAt(data, int64(off)+EntrySize); err != nil {
		return 0, err
	}
	e.checksum = header.Checksum(data)
	if err := f.writeEntry(off, e); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Add creates a new file. The chain is scanned from its start and the
// new entry goes into the first slot that is empty or structurally
// inconsistent, so space reclaimed by earlier deletes is reused before
// the chain grows. The previous entry's next pointer is updated first,
// then the new entry and its payload are written.
func (f *FS) Add(name string, data []byte) (int, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if len(data) == 0 || len(data) > eeprom.MaxImageSize {
		return 0, ErrBufferInvalid
	}

	if _, _, err := f.find(name); err == nil {
		f.log.Debugf("add %q: already exists", name)
		return 0, fmt.Errorf("%w: %q", ErrExists, name)
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	hs, err := f.headerSize()
	if err != nil {
		return 0, err
	}
	imageSize := int(f.dev.Size())

	// Scan for the first empty or broken slot, remembering the last
	// valid entry on the way.
	cur := hs
	var prev uint16
	var prevEntry entry
	for !wordIsEmpty(cur) && int(cur) < imageSize-EntrySize {
		e, err := f.readEntry(cur)
		if err != nil {
			return 0, err
		}
		if e.endsChain(cur) {
			break
		}
		prev, prevEntry = cur, e
		cur = e.next
	}

	off := int(hs)
	if prev != 0 {
		off = int(prev) + EntrySize + int(prevEntry.dataSize)
	}

	if off+EntrySize+len(data) >= imageSize {
		f.log.Debugf("add %q: no space for %d bytes at %d, image %d", name, len(data), off, imageSize)
		return 0, fmt.Errorf("%w: %d bytes at offset %d", ErrNotEnoughSpace, len(data), off)
	}

	if prev != 0 {
		prevEntry.next = uint16(off)
		if err := f.writeEntry(prev, prevEntry); err != nil {
			return 0, err
		}
	}

	e := entry{
		dataSize: uint16(len(data)),
		checksum: header.Checksum(data),
		next:     0,
	}
	e.setName(name)

	if err := f.writeEntry(uint16(off), e); err != nil {
		return 0, err
	}
	if err := f.writeAt(data, int64(off)+EntrySize); err != nil {
		return 0, err
	}

	f.log.Debugf("add %q: %d bytes at %d", name, len(data), off)
	return len(data), nil
}

// Delete removes a file and compacts the chain: every byte after the
// deleted entry moves left by the entry-plus-payload size, and the
// vacated tail is erased. Next pointers stay correct because they are
// absolute offsets of entries that all moved by the same amount.
func (f *FS) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	e, off, err := f.find(name)
	if err != nil {
		return err
	}

	imageSize := int(f.dev.Size())
	shift := EntrySize + int(e.dataSize)
	buf := make([]byte, shift)

	read := int(off) + shift
	for read < imageSize {
		n, rerr := f.dev.ReadAt(buf, int64(read))
		if n <= 0 {
			break
		}
		if rerr != nil && rerr != io.EOF {
			return fmt.Errorf("%w: %v", ErrDeviceRead, rerr)
		}
		if err := f.writeAt(buf[:n], int64(read-shift)); err != nil {
			return err
		}
		read += n
	}

	start, end := read-shift, read
	if end > imageSize {
		end = imageSize
	}
	blank := make([]byte, end-start)
	for i := range blank {
		blank[i] = EmptyByte
	}
	if err := f.writeAt(blank, int64(start)); err != nil {
		return err
	}

	f.log.Debugf("delete %q: reclaimed %d bytes at %d", name, shift, off)
	return nil
}

// Check validates the identity header: magic, known version and a
// present, matching checksum. Run it before trusting an image of
// unknown provenance. Chain corruption is not detected here; it is
// caught lazily when an operation walks past the damaged entry.
func (f *FS) Check() error {
	hs, err := f.headerSize()
	if err != nil {
		return err
	}

	buf := make([]byte, hs)
	if err := f.readAt(buf, 0); err != nil {
		return err
	}
	if err := header.VerifyChecksum(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return nil
}

// Format erases the whole image and writes a fresh header of the given
// version. All existing file data is destroyed.
func (f *FS) Format(v header.Version) error {
	img := make([]byte, f.dev.Size())
	for i := range img {
		img[i] = EmptyByte
	}
	if err := header.Init(img, v); err != nil {
		return err
	}
	return f.writeAt(img, 0)
}

// Header reads and decodes the identity header currently on the image.
func (f *FS) Header() (*header.Header, error) {
	hs, err := f.headerSize()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, hs)
	if err := f.readAt(buf, 0); err != nil {
		return nil, err
	}
	return header.Decode(buf)
}

// SetHeader encodes h with a recomputed checksum and writes it at
// offset 0. The file chain is untouched.
func (f *FS) SetHeader(h *header.Header) error {
	buf, err := h.Encode()
	if err != nil {
		return err
	}
	return f.writeAt(buf, 0)
}

// Defrag is reserved for compacting gaps beyond what Delete already
// does. The chain cannot fragment through the operations offered here,
// so this remains unimplemented; callers must not rely on any
// defragmentation outside Delete.
func (f *FS) Defrag() error {
	return ErrNotImplemented
}

func checkName(name string) error {
	if name == "" || len(name) > NameLength {
		return fmt.Errorf("%w: %q", ErrNameInvalid, name)
	}
	return nil
}

// headerSize resolves the size of the header currently on the image,
// and with it the offset where the chain begins.
func (f *FS) headerSize() (uint16, error) {
	var prefix [header.PrefixSize]byte
	if err := f.readAt(prefix[:], 0); err != nil {
		return 0, err
	}

	v, err := header.DetectVersion(prefix[:])
	if err != nil {
		if errors.Is(err, header.ErrInvalidMagic) {
			return 0, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		return 0, err
	}
	size, _ := header.Size(v)
	return uint16(size), nil
}

// find walks the chain for name. A failed entry read or an exhausted
// chain both report ErrNotFound; corruption past the entry of interest
// does not prevent a match before it.
func (f *FS) find(name string) (entry, uint16, error) {
	hs, err := f.headerSize()
	if err != nil {
		return entry{}, 0, err
	}

	cur := hs
	for {
		e, err := f.readEntry(cur)
		if err != nil {
			break
		}
		if e.Name() == name {
			return e, cur, nil
		}
		cur = e.next
		if cur == 0 {
			break
		}
	}
	return entry{}, 0, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (f *FS) readEntry(off uint16) (entry, error) {
	var buf [EntrySize]byte
	if err := f.readAt(buf[:], int64(off)); err != nil {
		return entry{}, err
	}
	return decodeEntry(buf[:]), nil
}

func (f *FS) writeEntry(off uint16, e entry) error {
	return f.writeAt(e.encode(), int64(off))
}

// readAt reads exactly len(buf) bytes or fails.
func (f *FS) readAt(buf []byte, off int64) error {
	n, err := f.dev.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		return fmt.Errorf("%w: short read of %d bytes at %d", ErrDeviceRead, len(buf), off)
	}
	return fmt.Errorf("%w: %v", ErrDeviceRead, err)
}

// writeAt writes exactly len(buf) bytes or fails.
func (f *FS) writeAt(buf []byte, off int64) error {
	n, err := f.dev.WriteAt(buf, off)
	if n == len(buf) && err == nil {
		return nil
	}
	if err == nil || err == io.EOF {
		return fmt.Errorf("%w: short write of %d bytes at %d", ErrDeviceWrite, len(buf), off)
	}
	return fmt.Errorf("%w: %v", ErrDeviceWrite, err)
}
