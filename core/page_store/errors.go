package pagestore

import "errors"

// --- Error Definitions ---
//
// The whole engine shares this taxonomy; higher layers wrap these with
// context rather than defining their own sentinels.

var (
	ErrIO               = errors.New("i/o error")
	ErrCorruptHeader    = errors.New("corrupt file header")
	ErrPageSizeMismatch = errors.New("page size does not match file")
	ErrInvalidPageSize  = errors.New("invalid page size")
	ErrInvalidPointer   = errors.New("invalid chain pointer")
	ErrCorruptChain     = errors.New("corrupt page chain")
)
