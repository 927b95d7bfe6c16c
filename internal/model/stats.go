package model

import "iter"

const (
	StatsEventsCreated   = "_events_created"
	StatsEventsChanged   = "_events_changed"
	StatsEventsDeleted   = "_events_deleted"
	StatsEventsRenamed   = "_events_renamed"
	StatsEventsIgnored   = "_events_ignored"
	StatsFilesScanned    = "_files_scanned"
	StatsFilesErr        = "_files_errors"
	StatsFilesDuplicate  = "_files_duplicates"
	StatsFilesExcluded   = "_files_excluded"
	StatsWatcherErr      = "_watcher_errors"
	StatsWatcherOverflow = "_watcher_overflows"
)

type Stats interface {
	IncEvent(kind EventKind)
	IncIgnoredEvents()
	IncScannedFiles()
	IncErrFiles()
	IncDuplicateFiles()
	IncExcludedFiles()
	IncWatcherErrors()
	IncWatcherOverflows()
	Stats() iter.Seq2[string, string]
}
