package ntm

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRange    = errors.New("ntm: invalid range")
	ErrOutOfRange      = errors.New("ntm: offset out of range")
	ErrCorruptDocument = errors.New("ntm: corrupt document")
	ErrIO              = errors.New("ntm: i/o failure")

	ErrInvalidMagic      = corrupt("invalid magic")
	ErrUnsupportedVer    = corrupt("unsupported version")
	ErrMissingRandomFlag = corrupt("random-access flag required")
	ErrInvalidTOC        = corrupt("invalid toc")
	ErrInvalidBlockRange = corrupt("invalid entry range")
	ErrOverlappingBlocks = corrupt("overlapping entry ranges")
	ErrInvalidSecureFile = corrupt("invalid secure file")

	ErrPasswordRequired = errors.New("ntm: password required")
	ErrInvalidPassword  = errors.New("ntm: invalid password")

	ErrImageNotFound = errors.New("ntm: image not in overlay")
	ErrImageOwned    = errors.New("ntm: image already owned by an overlay")
)

func corrupt(msg string) error {
	return fmt.Errorf("%w: %s", ErrCorruptDocument, msg)
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptDocument, fmt.Sprintf(format, args...))
}

func ioFailure(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}
