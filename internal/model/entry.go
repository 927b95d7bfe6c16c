package model

import (
	"io"
	"io/fs"
)

// Entry is a file in the watched folder. Path is absolute, Open and Stat
// go through the folder root.
type Entry interface {
	Path() string
	Open() (io.ReadCloser, error)
	Stat() (fs.FileInfo, error)
}
