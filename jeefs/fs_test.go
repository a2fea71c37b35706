package jeefs

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jethome-iot/go-jeefs/header"
)

// testDevice is a fixed-size in-memory image with the same bounded
// transfer semantics as the eeprom backends.
type testDevice struct {
	buf []byte
}

func newTestDevice(size int) *testDevice {
	return &testDevice{buf: make([]byte, size)}
}

func (d *testDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(d.buf)) {
		return 0, io.EOF
	}
	n := copy(p, d.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *testDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(d.buf)) {
		return 0, io.EOF
	}
	n := copy(d.buf[off:], p)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *testDevice) Close() error { return nil }

func (d *testDevice) Size() uint16 { return uint16(len(d.buf)) }

func newTestFS(t *testing.T, size int, v header.Version) (*FS, *testDevice) {
	t.Helper()
	dev := newTestDevice(size)
	fs := New(dev)
	require.NoError(t, fs.Format(v))
	return fs, dev
}

func payload(size int, seed byte) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = seed + byte(i)
	}
	return buf
}

func TestAddReadRoundTrip(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	data := payload(300, 7)
	n, err := fs.Add("config", data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	buf := make([]byte, 1024)
	n, err = fs.Read("config", buf)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.True(t, bytes.Equal(data, buf[:n]))

	info, err := fs.Find("config")
	require.NoError(t, err)
	require.Equal(t, uint16(256), info.Offset)
	require.Equal(t, header.Checksum(data), info.Checksum)
}

func TestAddDuplicate(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	_, err := fs.Add("config", payload(64, 1))
	require.NoError(t, err)

	_, err = fs.Add("config", payload(32, 2))
	require.ErrorIs(t, err, ErrExists)

	names, err := fs.List(0)
	require.NoError(t, err)
	require.Equal(t, []string{"config"}, names)
}

func TestAddValidation(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	_, err := fs.Add("", payload(8, 0))
	require.ErrorIs(t, err, ErrNameInvalid)

	_, err = fs.Add("sixteen-chars-xx", payload(8, 0))
	require.ErrorIs(t, err, ErrNameInvalid)

	_, err = fs.Add("empty", nil)
	require.ErrorIs(t, err, ErrBufferInvalid)
}

func TestReadValidation(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	_, err := fs.Add("config", payload(100, 3))
	require.NoError(t, err)

	_, err = fs.Read("config", nil)
	require.ErrorIs(t, err, ErrBufferInvalid)

	_, err = fs.Read("config", make([]byte, 99))
	require.ErrorIs(t, err, ErrBufferInvalid)

	_, err = fs.Read("missing", make([]byte, 16))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fs.Read("", make([]byte, 16))
	require.ErrorIs(t, err, ErrNameInvalid)
}

func TestWriteSameSizeInPlace(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	_, err := fs.Add("cal", payload(128, 1))
	require.NoError(t, err)
	_, err = fs.Add("tail", payload(64, 2))
	require.NoError(t, err)

	before, err := fs.Find("cal")
	require.NoError(t, err)

	update := payload(128, 9)
	n, err := fs.Write("cal", update)
	require.NoError(t, err)
	require.Equal(t, len(update), n)

	after, err := fs.Find("cal")
	require.NoError(t, err)
	require.Equal(t, before.Offset, after.Offset, "same-size overwrite must not move the entry")
	require.Equal(t, header.Checksum(update), after.Checksum)

	buf := make([]byte, 128)
	_, err = fs.Read("cal", buf)
	require.NoError(t, err)
	require.True(t, bytes.Equal(update, buf))

	names, err := fs.List(0)
	require.NoError(t, err)
	require.Equal(t, []string{"cal", "tail"}, names)
}

func TestWriteDifferentSizeMovesEntry(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	_, err := fs.Add("a", payload(100, 1))
	require.NoError(t, err)
	_, err = fs.Add("b", payload(50, 2))
	require.NoError(t, err)

	update := payload(200, 3)
	n, err := fs.Write("a", update)
	require.NoError(t, err)
	require.Equal(t, len(update), n)

	// delete-then-add appends behind the survivor
	names, err := fs.List(0)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, names)

	buf := make([]byte, 200)
	_, err = fs.Read("a", buf)
	require.NoError(t, err)
	require.True(t, bytes.Equal(update, buf))
}

func TestWriteNotFound(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)
	_, err := fs.Write("ghost", payload(8, 0))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCompaction(t *testing.T) {
	fs, dev := newTestFS(t, 8192, header.V3)

	da, db, dc := payload(100, 1), payload(200, 2), payload(50, 3)
	_, err := fs.Add("a", da)
	require.NoError(t, err)
	_, err = fs.Add("b", db)
	require.NoError(t, err)
	_, err = fs.Add("c", dc)
	require.NoError(t, err)

	// a@256, b@380, c@604
	infoC, err := fs.Find("c")
	require.NoError(t, err)
	require.Equal(t, uint16(604), infoC.Offset)

	require.NoError(t, fs.Delete("b"))

	names, err := fs.List(0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, names)

	// c moved left by exactly 24+200 bytes
	infoC, err = fs.Find("c")
	require.NoError(t, err)
	require.Equal(t, uint16(380), infoC.Offset)

	buf := make([]byte, 50)
	_, err = fs.Read("c", buf)
	require.NoError(t, err)
	require.True(t, bytes.Equal(dc, buf))

	// the vacated tail is erased
	end := 380 + EntrySize + 50
	for i := end; i < end+EntrySize+200; i++ {
		require.Equal(t, byte(EmptyByte), dev.buf[i], "byte %d after compaction", i)
	}
}

func TestDeleteNotFound(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)
	require.ErrorIs(t, fs.Delete("ghost"), ErrNotFound)
	require.ErrorIs(t, fs.Delete(""), ErrNameInvalid)
}

func TestAddAfterDeleteReusesSpace(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	_, err := fs.Add("a", payload(40, 1))
	require.NoError(t, err)
	require.NoError(t, fs.Delete("a"))

	_, err = fs.Add("b", payload(12, 2))
	require.NoError(t, err)

	info, err := fs.Find("b")
	require.NoError(t, err)
	require.Equal(t, uint16(256), info.Offset, "add must reuse the reclaimed slot after the header")
}

func TestSpaceExhaustion(t *testing.T) {
	fs, dev := newTestFS(t, 8192, header.V1)

	// 512-byte v1 header; each file takes 24+700 bytes, so exactly ten
	// fit and the eleventh is rejected.
	data := payload(700, 5)
	names := []string{"f0", "f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9"}
	for _, name := range names {
		_, err := fs.Add(name, data)
		require.NoError(t, err, "adding %s", name)
	}

	snapshot := make([]byte, len(dev.buf))
	copy(snapshot, dev.buf)

	_, err := fs.Add("f10", data)
	require.ErrorIs(t, err, ErrNotEnoughSpace)

	require.True(t, bytes.Equal(snapshot, dev.buf), "failed add must not touch the image")

	got, err := fs.List(0)
	require.NoError(t, err)
	require.Equal(t, names, got)
}

func TestListMax(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	for _, name := range []string{"a", "b", "c"} {
		_, err := fs.Add(name, payload(16, 1))
		require.NoError(t, err)
	}

	names, err := fs.List(2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names)

	names, err = fs.List(10)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, names)
}

func TestListEmptyImage(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)
	names, err := fs.List(0)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestFormatThenCheck(t *testing.T) {
	fs, dev := newTestFS(t, 8192, header.V3)
	require.NoError(t, fs.Check())

	dev.buf[0] ^= 0xFF
	require.ErrorIs(t, fs.Check(), ErrCorrupted)
	dev.buf[0] ^= 0xFF
	require.NoError(t, fs.Check())

	// a flip inside the coverage range breaks the checksum
	dev.buf[100] ^= 0x01
	require.ErrorIs(t, fs.Check(), ErrCorrupted)
}

func TestCheckUnformattedImage(t *testing.T) {
	fs := New(newTestDevice(8192))
	require.ErrorIs(t, fs.Check(), ErrCorrupted)
}

func TestCheckUnknownVersion(t *testing.T) {
	fs, dev := newTestFS(t, 8192, header.V3)
	dev.buf[8] = 9
	require.ErrorIs(t, fs.Check(), header.ErrUnsupportedVersion)
}

func TestReformatBetweenCalls(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V1)

	_, err := fs.Add("old", payload(32, 1))
	require.NoError(t, err)

	// header version is re-resolved per call, so the chain start moves
	require.NoError(t, fs.Format(header.V2))

	names, err := fs.List(0)
	require.NoError(t, err)
	require.Empty(t, names)

	_, err = fs.Add("new", payload(32, 2))
	require.NoError(t, err)

	info, err := fs.Find("new")
	require.NoError(t, err)
	require.Equal(t, uint16(256), info.Offset)
}

func TestCorruptChainStopsScan(t *testing.T) {
	fs, dev := newTestFS(t, 8192, header.V3)

	_, err := fs.Add("a", payload(30, 1))
	require.NoError(t, err)
	_, err = fs.Add("b", payload(30, 2))
	require.NoError(t, err)

	// break b's next pointer so it disagrees with its computed
	// successor; the slot counts as corrupt and the next add lands there
	infoB, err := fs.Find("b")
	require.NoError(t, err)
	e, err := fs.readEntry(infoB.Offset)
	require.NoError(t, err)
	e.next = 0x1234
	require.NoError(t, fs.writeEntry(infoB.Offset, e))

	names, err := fs.List(0)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, names, "list stops at the corrupt slot")

	_, err = fs.Add("c", payload(30, 3))
	require.NoError(t, err)

	infoC, err := fs.Find("c")
	require.NoError(t, err)
	require.Equal(t, infoB.Offset, infoC.Offset, "add reuses the corrupt slot")

	// a is still intact before the damage point
	buf := make([]byte, 30)
	_, err = fs.Read("a", buf)
	require.NoError(t, err)
	require.NotZero(t, dev.buf[int(infoC.Offset)+EntrySize])
}

func TestHeaderRoundTripThroughFS(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)

	h, err := fs.Header()
	require.NoError(t, err)
	require.Equal(t, header.V3, h.Version)
	require.Empty(t, h.BoardName)

	h.BoardName = "JXD-CPU-E1ETH"
	h.Serial = "SN-1"
	h.Timestamp = 1700000000
	require.NoError(t, fs.SetHeader(h))
	require.NoError(t, fs.Check())

	got, err := fs.Header()
	require.NoError(t, err)
	require.Equal(t, "JXD-CPU-E1ETH", got.BoardName)
	require.Equal(t, "SN-1", got.Serial)
	require.Equal(t, int64(1700000000), got.Timestamp)

	// files survive a header update
	_, err = fs.Add("cfg", payload(8, 1))
	require.NoError(t, err)
	h, err = fs.Header()
	require.NoError(t, err)
	h.BoardVersion = "1.1"
	require.NoError(t, fs.SetHeader(h))

	names, err := fs.List(0)
	require.NoError(t, err)
	require.Equal(t, []string{"cfg"}, names)
}

func TestDefragNotImplemented(t *testing.T) {
	fs, _ := newTestFS(t, 8192, header.V3)
	require.ErrorIs(t, fs.Defrag(), ErrNotImplemented)
}
