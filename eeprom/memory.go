package eeprom

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Registry tracks open in-memory devices by path, enforcing one open
// session per image. Whoever constructs device sessions owns a Registry;
// there is no package-level registry.
type Registry struct {
	mu   sync.Mutex
	open map[string]*MemDevice
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{open: make(map[string]*MemDevice)}
}

// Open opens the image at path through an in-memory mirror. Size
// semantics match Open for FileDevice: zero infers the size from the
// backing file, non-zero creates the file at that size. The whole image
// is read into memory; every write updates the mirror and is saved back
// to the file before the call returns.
func (r *Registry) Open(path string, size uint16) (*MemDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.open[path]; ok {
		return nil, ErrAlreadyOpen
	}

	f, sz, err := openBacking(path, size)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, sz)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("eeprom: load %s: %w", path, err)
	}

	d := &MemDevice{
		f:           f,
		path:        path,
		reg:         r,
		buf:         buf,
		saveOnWrite: true,
	}
	r.open[path] = d
	return d, nil
}

func (r *Registry) remove(path string) {
	r.mu.Lock()
	delete(r.open, path)
	r.mu.Unlock()
}

// MemDevice is a Device holding the full image in memory, with
// write-through persistence to the backing file.
type MemDevice struct {
	mu          sync.Mutex
	f           *os.File
	path        string
	reg         *Registry
	buf         []byte
	dirty       bool
	saveOnWrite bool
}

var _ Device = (*MemDevice)(nil)

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := clampRange(off, len(p), len(d.buf))
	if !ok {
		return 0, io.EOF
	}

	copy(p[:n], d.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := clampRange(off, len(p), len(d.buf))
	if !ok {
		return 0, io.EOF
	}

	copy(d.buf[off:], p[:n])
	d.dirty = true

	if d.saveOnWrite {
		if err := d.save(); err != nil {
			return n, err
		}
		d.dirty = false
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// save flushes the mirror to the backing file. Caller holds d.mu.
func (d *MemDevice) save() error {
	if _, err := d.f.WriteAt(d.buf, 0); err != nil {
		return fmt.Errorf("eeprom: save %s: %w", d.path, err)
	}
	return nil
}

// Size returns the image size in bytes.
func (d *MemDevice) Size() uint16 { return uint16(len(d.buf)) }

// Close flushes any unsaved changes, releases the registry slot and
// closes the backing file.
func (d *MemDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dirty {
		if err := d.save(); err != nil {
			d.f.Close()
			d.reg.remove(d.path)
			return err
		}
		d.dirty = false
	}
	d.reg.remove(d.path)
	return d.f.Close()
}
