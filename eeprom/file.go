package eeprom

import (
	"fmt"
	"io"
	"os"
)

// FileDevice is a Device backed directly by a file, one read or write
// syscall per transfer.
type FileDevice struct {
	f    *os.File
	size uint16
}

var _ Device = (*FileDevice)(nil)

// Open opens the EEPROM image at path. A size of zero means the image
// already exists and its size is taken from the backing file; a non-zero
// size creates the file if needed and grows it to exactly that size.
func Open(path string, size uint16) (*FileDevice, error) {
	f, sz, err := openBacking(path, size)
	if err != nil {
		return nil, err
	}
	return &FileDevice{f: f, size: sz}, nil
}

func openBacking(path string, size uint16) (*os.File, uint16, error) {
	flags := os.O_RDWR
	if size > 0 {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flags, 0o660)
	if err != nil {
		return nil, 0, fmt.Errorf("eeprom: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("eeprom: stat %s: %w", path, err)
	}

	if size == 0 {
		if fi.Size() == 0 {
			f.Close()
			return nil, 0, ErrNoSize
		}
		if fi.Size() > MaxImageSize {
			f.Close()
			return nil, 0, ErrImageTooLarge
		}
		return f, uint16(fi.Size()), nil
	}

	if fi.Size() != int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("eeprom: truncate %s: %w", path, err)
		}
	}
	return f, size, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, ok := clampRange(off, len(p), int(d.size))
	if !ok {
		return 0, io.EOF
	}

	read, err := d.f.ReadAt(p[:n], off)
	if err != nil && err != io.EOF {
		return read, err
	}
	if n < len(p) {
		return read, io.EOF
	}
	return read, nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	n, ok := clampRange(off, len(p), int(d.size))
	if !ok {
		return 0, io.EOF
	}

	written, err := d.f.WriteAt(p[:n], off)
	if err != nil {
		return written, err
	}
	if n < len(p) {
		return written, io.EOF
	}
	return written, nil
}

// Size returns the image size in bytes.
func (d *FileDevice) Size() uint16 { return d.size }

func (d *FileDevice) Close() error { return d.f.Close() }
