package model

import "errors"

var (
	// ErrTooBig is returned for files exceeding the scanner size limit.
	ErrTooBig = errors.New("file too big")
	// ErrFolder means the watched folder does not exist or cannot be read.
	ErrFolder = errors.New("folder not accessible")
)
