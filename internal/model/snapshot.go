package model

import (
	"context"
	"time"
)

// DefaultTop is how many symbols a snapshot shows per document and for the
// folder.
const DefaultTop = 5

// Snapshot is the state handed to an Emitter after every recomputation.
type Snapshot struct {
	Session   string         `json:"session" yaml:"session"`
	Sequence  uint64         `json:"sequence" yaml:"sequence"`
	Time      time.Time      `json:"time" yaml:"time"`
	Folder    string         `json:"folder" yaml:"folder"`
	Documents []DocumentView `json:"documents" yaml:"documents"`
	Merged    Symbols        `json:"merged" yaml:"merged"`
}

// DocumentView is a read-only projection of one tracked document.
type DocumentView struct {
	Name     string  `json:"name" yaml:"name"`
	Path     string  `json:"path" yaml:"path"`
	Hash     string  `json:"hash" yaml:"hash"`
	Encoding string  `json:"encoding" yaml:"encoding"`
	Total    int     `json:"total" yaml:"total"`
	Top      Symbols `json:"top" yaml:"top"`
}

// Emitter receives snapshots. It is the output collaborator of the
// aggregator.
type Emitter interface {
	Emit(ctx context.Context, snapshot Snapshot) error
}

type EmitCloser interface {
	Emitter
	Close() error
}
