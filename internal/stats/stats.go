package stats

import (
	"expvar"
	"iter"
	"maps"
	"slices"

	"github.com/CZERTAINLY/symstat/internal/model"
)

// Stats holds expvar-backed counters for the watch process and publishes
// them under a common key prefix. All counters are expvar.Map and are safe for
// concurrent updates. When the standard expvar HTTP handler is registered,
// these values are available at /debug/vars.
//
// - symstat_events_{created,changed,deleted,renamed}: events applied to the folder
// - symstat_events_ignored: events for paths outside the folder or not matching *.txt
// - symstat_files_scanned: successful scans and rescans
// - symstat_files_errors: files that could not be read or decoded
// - symstat_files_duplicates: files rejected because an identical one is tracked
// - symstat_files_excluded: matching names which are not regular files
// - symstat_watcher_errors: errors reported by the notification source
// - symstat_watcher_overflows: kernel queue overflows (events were lost)
//
// A nil *Stats is valid and counts nothing.
type Stats struct {
	prefix  string
	root    *expvar.Map
	events  *expvar.Map
	files   *expvar.Map
	watcher *expvar.Map
}

// New publishes new set of metrics. Registering the same metrics twice causes panic, so for tests, the prefix should be unique.
func New(prefix string) *Stats {
	root := expvar.NewMap(prefix)
	events := new(expvar.Map).Init()
	files := new(expvar.Map).Init()
	watcher := new(expvar.Map).Init()

	for _, k := range []string{"created", "changed", "deleted", "renamed", "ignored"} {
		events.Add(k, 0)
	}
	for _, k := range []string{"scanned", "errors", "duplicates", "excluded"} {
		files.Add(k, 0)
	}
	watcher.Add("errors", 0)
	watcher.Add("overflows", 0)

	root.Set("events", events)
	root.Set("files", files)
	root.Set("watcher", watcher)

	return &Stats{
		prefix:  prefix,
		root:    root,
		events:  events,
		files:   files,
		watcher: watcher,
	}
}

func (s *Stats) IncEvent(kind model.EventKind) {
	if s == nil {
		return
	}
	s.events.Add(kind.String(), 1)
}
func (s *Stats) IncIgnoredEvents() {
	if s == nil {
		return
	}
	s.events.Add("ignored", 1)
}
func (s *Stats) IncScannedFiles() {
	if s == nil {
		return
	}
	s.files.Add("scanned", 1)
}
func (s *Stats) IncErrFiles() {
	if s == nil {
		return
	}
	s.files.Add("errors", 1)
}
func (s *Stats) IncDuplicateFiles() {
	if s == nil {
		return
	}
	s.files.Add("duplicates", 1)
}
func (s *Stats) IncExcludedFiles() {
	if s == nil {
		return
	}
	s.files.Add("excluded", 1)
}
func (s *Stats) IncWatcherErrors() {
	if s == nil {
		return
	}
	s.watcher.Add("errors", 1)
}
func (s *Stats) IncWatcherOverflows() {
	if s == nil {
		return
	}
	s.watcher.Add("overflows", 1)
}

// Stats returns a name, value iterator across registered metrics. This uses expvar.Do under the hood, so is safe to be called concurrently.
// Stats are returned in an alphabetic order.
func (s *Stats) Stats() iter.Seq2[string, string] {
	if s == nil {
		return func(func(string, string) bool) {}
	}
	stats := make(map[string]string, 11)
	s.events.Do(func(kv expvar.KeyValue) {
		stats["events_"+kv.Key] = kv.Value.String()
	})
	s.files.Do(func(kv expvar.KeyValue) {
		stats["files_"+kv.Key] = kv.Value.String()
	})
	s.watcher.Do(func(kv expvar.KeyValue) {
		stats["watcher_"+kv.Key] = kv.Value.String()
	})

	keys := slices.Sorted(maps.Keys(stats))
	return func(yield func(string, string) bool) {
		for _, key := range keys {
			if !yield(s.prefix+"_"+key, stats[key]) {
				return
			}
		}
	}
}
