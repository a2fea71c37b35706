package jeefs

import "errors"

var (
	// ErrNameInvalid is returned when a file name is empty or longer
	// than NameLength characters.
	ErrNameInvalid = errors.New("jeefs: file name not valid")

	// ErrBufferInvalid is returned when caller-supplied data or a
	// destination buffer is empty or has an unusable size.
	ErrBufferInvalid = errors.New("jeefs: buffer not valid")

	// ErrNotFound is returned when no file with the given name exists
	// in the chain.
	ErrNotFound = errors.New("jeefs: file not found")

	// ErrExists is returned by Add when the name is already taken. The
	// chain is left untouched.
	ErrExists = errors.New("jeefs: file already exists")

	// ErrNotEnoughSpace is returned when the image cannot hold another
	// entry plus its payload.
	ErrNotEnoughSpace = errors.New("jeefs: not enough space")

	// ErrCorrupted is returned when the header magic or checksum does
	// not verify.
	ErrCorrupted = errors.New("jeefs: image corrupted")

	ErrDeviceRead  = errors.New("jeefs: device read failed")
	ErrDeviceWrite = errors.New("jeefs: device write failed")

	// ErrNotImplemented marks operations that are part of the public
	// contract but deliberately not implemented.
	ErrNotImplemented = errors.New("jeefs: not implemented")
)
