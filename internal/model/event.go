package model

import "time"

// EventKind is the kind of a filesystem change within the watched folder.
type EventKind int

const (
	Created EventKind = iota
	Changed
	Deleted
	Renamed
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is a single change notification. OldPath is set for Renamed only.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string
	Time    time.Time
}
