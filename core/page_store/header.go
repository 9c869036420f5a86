package pagestore

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// FileMagic identifies a verter file ("VRTR" in little-endian order).
	FileMagic uint32 = 0x52545256

	// FormatVersion is the on-disk format revision.
	FormatVersion uint32 = 1

	// FileHeaderSize is the fixed size of the header record at offset 0.
	// Pages begin immediately after it.
	FileHeaderSize = 64
)

// FileHeader is the singleton record at the start of the file. It carries
// the two chain roots and the allocation watermark. All fields are fixed
// size so binary.Read/Write stay consistent; explicit padding brings the
// struct to exactly FileHeaderSize bytes.
type FileHeader struct {
	Magic        uint32
	Version      uint32
	PageSize     uint32
	Reserved     uint32
	FreeListHead PageID // head of the free-page chain, NilPageID if empty
	RootHead     PageID // head page of the root chain
	PageCount    uint64 // pages currently allocated in the file
	_            [FileHeaderSize - 40]byte
}

// newFileHeader returns the header for a freshly created file.
func newFileHeader(pageSize uint32) FileHeader {
	return FileHeader{
		Magic:        FileMagic,
		Version:      FormatVersion,
		PageSize:     pageSize,
		FreeListHead: NilPageID,
		RootHead:     NilPageID,
	}
}

// validate checks the stored header against the caller's configured page
// size. Magic or version failures refuse the file as corrupt; a page size
// difference is reported separately so callers can tell the two apart.
func (h *FileHeader) validate(pageSize uint32) error {
	if h.Magic != FileMagic {
		return fmt.Errorf("%w: bad magic 0x%08x", ErrCorruptHeader, h.Magic)
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrCorruptHeader, h.Version)
	}
	if h.PageSize < MinPageSize {
		return fmt.Errorf("%w: stored page size %d below minimum %d", ErrCorruptHeader, h.PageSize, MinPageSize)
	}
	if h.PageSize != pageSize {
		return fmt.Errorf("%w: file has %d, configured %d", ErrPageSizeMismatch, h.PageSize, pageSize)
	}
	return nil
}

// encode serializes the header into a FileHeaderSize byte slice.
func (h *FileHeader) encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(FileHeaderSize)
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("serializing header: %w", err)
	}
	if buf.Len() != FileHeaderSize {
		return nil, fmt.Errorf("header serialized to %d bytes, want %d", buf.Len(), FileHeaderSize)
	}
	return buf.Bytes(), nil
}

// decode deserializes the header from a FileHeaderSize byte slice.
func (h *FileHeader) decode(data []byte) error {
	if len(data) != FileHeaderSize {
		return fmt.Errorf("%w: header is %d bytes, want %d", ErrCorruptHeader, len(data), FileHeaderSize)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, h); err != nil {
		return fmt.Errorf("%w: deserializing header: %v", ErrCorruptHeader, err)
	}
	return nil
}
