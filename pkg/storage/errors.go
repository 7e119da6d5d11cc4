package storage

import "github.com/pkg/errors"

var (
	ErrNotFound = errors.New("not found")
	ErrCorrupt  = errors.New("stored chain is corrupt")
	ErrClosed   = errors.New("store closed")
)
