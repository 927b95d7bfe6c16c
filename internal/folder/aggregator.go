// Package folder keeps live character statistics for the text files of a
// single folder.
//
// The Aggregator owns the set of tracked documents. Filesystem events are
// applied one at a time; each of them mutates the set, recomputes the
// merged statistic and hands a Snapshot to the configured model.Emitter.
// Files are deduplicated by content hash when they are added. A document
// keeps being tracked when a later write makes it equal to another one, and
// a duplicate rejected on creation is not picked up again when the tracked
// copy is deleted.
package folder

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/CZERTAINLY/symstat/internal/log"
	"github.com/CZERTAINLY/symstat/internal/model"
	"github.com/CZERTAINLY/symstat/internal/parallel"
	"github.com/CZERTAINLY/symstat/internal/stats"
	"github.com/CZERTAINLY/symstat/internal/textfile"
	"github.com/CZERTAINLY/symstat/internal/walk"
)

// Config configures an Aggregator.
type Config struct {
	// Root gives access to the folder content, usually os.Root.FS().
	Root fs.FS
	// Folder is the path of the folder. Event paths are resolved against it.
	Folder string
	// Match selects tracked files, a zero Matcher tracks every file.
	Match   walk.Matcher
	Counter *stats.Stats
	Emitter model.Emitter
	Session string
	// Top limits the symbols of each document view, DefaultTop when zero.
	Top int
	// Workers bounds the parallel scans of Initialize.
	Workers int
	// Now is time.Now if nil.
	Now func() time.Time
}

type hash = [sha256.Size]byte

type Aggregator struct {
	cfg Config

	mx       sync.Mutex
	docs     map[string]*textfile.Document
	order    []*textfile.Document
	hashes   map[hash]*textfile.Document
	merged   model.Symbols
	sequence uint64
}

func New(cfg Config) *Aggregator {
	if cfg.Top == 0 {
		cfg.Top = model.DefaultTop
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Folder = filepath.Clean(cfg.Folder)
	return &Aggregator{
		cfg:    cfg,
		docs:   make(map[string]*textfile.Document),
		hashes: make(map[hash]*textfile.Document),
	}
}

// Initialize scans the matching files of the folder and emits the first
// snapshot. Files which can't be scanned are logged and skipped. The
// returned error wraps model.ErrFolder when the folder itself can't be
// listed.
func (a *Aggregator) Initialize(ctx context.Context) error {
	ctx = log.ContextAttrs(ctx, slog.String("folder", a.cfg.Folder))
	if a.cfg.Root == nil {
		return fmt.Errorf("%w: %s: no root", model.ErrFolder, a.cfg.Folder)
	}

	var entries []model.Entry
	for entry, err := range walk.Dir(ctx, a.cfg.Counter, a.cfg.Root, a.cfg.Folder, a.cfg.Match) {
		switch {
		case err != nil && entry == nil:
			return fmt.Errorf("%w: %s: %w", model.ErrFolder, a.cfg.Folder, err)
		case err != nil:
			slog.WarnContext(ctx, "skipping file", "path", entry.Path(), "error", err)
		default:
			entries = append(entries, entry)
		}
	}
	docs := make([]*textfile.Document, len(entries))
	scan := func(ctx context.Context, i int) (int, error) {
		doc, err := textfile.Scan(ctx, entries[i])
		if err != nil {
			return i, err
		}
		docs[i] = doc
		return i, nil
	}
	for _, err := range parallel.NewMap(ctx, a.cfg.Workers, scan).Iter(indexes(len(entries))) {
		if err != nil {
			a.scanFailed(ctx, err)
			continue
		}
		a.cfg.Counter.IncScannedFiles()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mx.Lock()
	defer a.mx.Unlock()
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		a.insert(ctx, doc)
	}
	a.recomputeMerged()
	a.emit(ctx)
	return nil
}

func indexes(n int) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := range n {
			if !yield(i, nil) {
				return
			}
		}
	}
}

// Apply dispatches an event to the matching operation. Events for paths
// outside the folder or with a non-matching name are ignored.
func (a *Aggregator) Apply(ctx context.Context, event model.Event) {
	ctx = log.ContextAttrs(ctx,
		slog.String("event", event.Kind.String()),
		slog.String("path", event.Path),
	)

	switch event.Kind {
	case model.Created:
		a.OnCreated(ctx, event.Path)
	case model.Changed:
		a.OnChanged(ctx, event.Path)
	case model.Deleted:
		a.OnDeleted(ctx, event.Path)
	case model.Renamed:
		a.OnRenamed(ctx, event.OldPath, event.Path)
	default:
		a.ignore(ctx)
	}
}

// OnCreated scans a new file and starts tracking it unless a document with
// the same content is tracked already. A Create for a path which is tracked
// rescans it.
func (a *Aggregator) OnCreated(ctx context.Context, path string) {
	entry, ok := a.entry(ctx, path)
	if !ok {
		return
	}
	a.cfg.Counter.IncEvent(model.Created)

	a.mx.Lock()
	defer a.mx.Unlock()

	if doc, ok := a.docs[entry.Path()]; ok {
		slog.DebugContext(ctx, "created path is tracked: rescanning")
		a.rescan(ctx, doc, entry)
	} else {
		doc, err := textfile.Scan(ctx, entry)
		if err != nil {
			a.scanFailed(ctx, err)
			return
		}
		a.cfg.Counter.IncScannedFiles()
		a.insert(ctx, doc)
	}
	a.recomputeMerged()
	a.emit(ctx)
}

// OnChanged rescans a tracked document in place. The content is not checked
// for duplicates again. A failed rescan keeps the previous statistics.
func (a *Aggregator) OnChanged(ctx context.Context, path string) {
	entry, ok := a.entry(ctx, path)
	if !ok {
		return
	}
	a.cfg.Counter.IncEvent(model.Changed)

	a.mx.Lock()
	defer a.mx.Unlock()

	if doc, ok := a.docs[entry.Path()]; ok {
		a.rescan(ctx, doc, entry)
	} else {
		slog.DebugContext(ctx, "changed path is not tracked")
	}
	a.recomputeMerged()
	a.emit(ctx)
}

// OnDeleted stops tracking a document. Deleting an untracked path changes
// nothing.
func (a *Aggregator) OnDeleted(ctx context.Context, path string) {
	entry, ok := a.entry(ctx, path)
	if !ok {
		return
	}
	a.cfg.Counter.IncEvent(model.Deleted)

	a.mx.Lock()
	defer a.mx.Unlock()

	if doc, ok := a.docs[entry.Path()]; ok {
		a.remove(doc)
	} else {
		slog.DebugContext(ctx, "deleted path is not tracked")
	}
	a.recomputeMerged()
	a.emit(ctx)
}

// OnRenamed moves a tracked document to newPath. The file at newPath is
// hashed first: a rename is paired from two separate notifications, so the
// Create may belong to an unrelated file. When the content differs, the
// event is applied as a delete of oldPath and a create of newPath.
// Otherwise only the path changes and nothing is recomputed.
func (a *Aggregator) OnRenamed(ctx context.Context, oldPath, newPath string) {
	ctx = log.ContextAttrs(ctx, slog.String("old_path", oldPath))
	oldEntry, oldOK := a.resolve(oldPath)
	newEntry, newOK := a.resolve(newPath)
	switch {
	case !oldOK && !newOK:
		a.ignore(ctx)
		return
	case !newOK:
		// moved away or renamed to an untracked name
		a.OnDeleted(ctx, oldPath)
		return
	case !oldOK:
		a.OnCreated(ctx, newPath)
		return
	}

	a.mx.Lock()
	defer a.mx.Unlock()

	doc, ok := a.docs[oldEntry.Path()]
	if oldEntry.Path() == newEntry.Path() {
		a.cfg.Counter.IncEvent(model.Renamed)
		a.emit(ctx)
		return
	}

	moved, err := textfile.Scan(ctx, newEntry)
	if err != nil {
		a.scanFailed(ctx, err)
	} else {
		a.cfg.Counter.IncScannedFiles()
	}
	if !ok || moved == nil || moved.Hash != doc.Hash {
		if ok {
			slog.InfoContext(ctx, "renamed content differs: applying as delete and create")
			a.cfg.Counter.IncEvent(model.Deleted)
			a.remove(doc)
		}
		if moved != nil {
			a.cfg.Counter.IncEvent(model.Created)
			if replaced, ok := a.docs[moved.Path]; ok {
				a.remove(replaced)
			}
			a.insert(ctx, moved)
		}
		a.recomputeMerged()
		a.emit(ctx)
		return
	}

	a.cfg.Counter.IncEvent(model.Renamed)
	// a tracked document at the target was replaced on disk
	if replaced, ok := a.docs[newEntry.Path()]; ok {
		a.remove(replaced)
		a.recomputeMerged()
	}
	delete(a.docs, doc.Path)
	doc.Path = newEntry.Path()
	a.docs[doc.Path] = doc
	a.emit(ctx)
}

// entry resolves an event path to a direct child of the folder.
func (a *Aggregator) entry(ctx context.Context, path string) (model.Entry, bool) {
	entry, ok := a.resolve(path)
	if !ok {
		a.ignore(ctx)
	}
	return entry, ok
}

func (a *Aggregator) resolve(path string) (model.Entry, bool) {
	path = filepath.Clean(path)
	if filepath.Dir(path) != a.cfg.Folder || !a.cfg.Match.Match(path) {
		return nil, false
	}
	return walk.File(a.cfg.Root, a.cfg.Folder, filepath.Base(path)), true
}

func (a *Aggregator) ignore(ctx context.Context) {
	slog.DebugContext(ctx, "ignoring event")
	a.cfg.Counter.IncIgnoredEvents()
}

// insert adds doc unless its content is tracked already. Caller holds mx.
func (a *Aggregator) insert(ctx context.Context, doc *textfile.Document) bool {
	if dup, ok := a.hashes[doc.Hash]; ok {
		slog.InfoContext(ctx, "duplicate content: not tracking",
			"path", doc.Path,
			"duplicate_of", dup.Path,
		)
		a.cfg.Counter.IncDuplicateFiles()
		return false
	}
	a.docs[doc.Path] = doc
	a.order = append(a.order, doc)
	a.hashes[doc.Hash] = doc
	return true
}

// rescan updates doc from entry and moves it in the hash index. Caller
// holds mx.
func (a *Aggregator) rescan(ctx context.Context, doc *textfile.Document, entry model.Entry) {
	old := doc.Hash
	if err := doc.Rescan(ctx, entry); err != nil {
		a.scanFailed(ctx, err)
		return
	}
	a.cfg.Counter.IncScannedFiles()
	if old == doc.Hash {
		return
	}
	a.unindex(doc, old)
	if _, ok := a.hashes[doc.Hash]; !ok {
		a.hashes[doc.Hash] = doc
	}
}

// remove stops tracking doc. Caller holds mx.
func (a *Aggregator) remove(doc *textfile.Document) {
	delete(a.docs, doc.Path)
	a.order = slices.DeleteFunc(a.order, func(d *textfile.Document) bool {
		return d == doc
	})
	a.unindex(doc, doc.Hash)
}

// unindex drops doc from the hash index under h. Another tracked document
// with the same content takes its place.
func (a *Aggregator) unindex(doc *textfile.Document, h hash) {
	if a.hashes[h] != doc {
		return
	}
	delete(a.hashes, h)
	for _, d := range a.order {
		if d != doc && d.Hash == h {
			a.hashes[h] = d
			return
		}
	}
}

func (a *Aggregator) scanFailed(ctx context.Context, err error) {
	a.cfg.Counter.IncErrFiles()
	if textfile.IsTransient(err) {
		slog.DebugContext(ctx, "file disappeared before scan: ignoring", "error", err)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	slog.WarnContext(ctx, "scan failed: ignoring", "error", err)
}

// recomputeMerged sums the symbols of all tracked documents from scratch.
// Caller holds mx.
func (a *Aggregator) recomputeMerged() {
	merged := make(model.Symbols, 0, len(a.merged))
	index := make(map[rune]int, len(a.merged))
	for _, doc := range a.order {
		for _, sym := range doc.Symbols {
			if i, ok := index[sym.Char]; ok {
				merged[i].Frequency += sym.Frequency
				continue
			}
			index[sym.Char] = len(merged)
			merged = append(merged, sym)
		}
	}
	model.SortByFrequency(merged)
	a.merged = merged
}

// emit hands the current state to the emitter. Caller holds mx, so
// snapshots are delivered in sequence order.
func (a *Aggregator) emit(ctx context.Context) {
	if a.cfg.Emitter == nil {
		return
	}
	a.sequence++
	if err := a.cfg.Emitter.Emit(ctx, a.snapshot()); err != nil {
		slog.ErrorContext(ctx, "emitting snapshot", "error", err)
	}
}

func (a *Aggregator) snapshot() model.Snapshot {
	views := make([]model.DocumentView, len(a.order))
	for i, doc := range a.order {
		views[i] = doc.View(a.cfg.Top)
	}
	return model.Snapshot{
		Session:   a.cfg.Session,
		Sequence:  a.sequence,
		Time:      a.cfg.Now(),
		Folder:    a.cfg.Folder,
		Documents: views,
		Merged:    a.merged.Top(a.cfg.Top).Clone(),
	}
}

// Snapshot returns a copy of the current state. Per document and merged
// symbols are limited to top entries, all of them if top is negative.
func (a *Aggregator) Snapshot(top int) model.Snapshot {
	a.mx.Lock()
	defer a.mx.Unlock()
	snap := a.snapshot()
	for i, doc := range a.order {
		snap.Documents[i].Top = doc.Symbols.Top(top).Clone()
	}
	snap.Merged = a.merged.Top(top).Clone()
	return snap
}

// Documents returns copies of the tracked documents in insertion order.
func (a *Aggregator) Documents() []textfile.Document {
	a.mx.Lock()
	defer a.mx.Unlock()
	ret := make([]textfile.Document, len(a.order))
	for i, doc := range a.order {
		ret[i] = *doc
		ret[i].Symbols = doc.Symbols.Clone()
	}
	return ret
}

// Merged returns a copy of the folder wide statistic.
func (a *Aggregator) Merged() model.Symbols {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.merged.Clone()
}

// Len is the number of tracked documents.
func (a *Aggregator) Len() int {
	a.mx.Lock()
	defer a.mx.Unlock()
	return len(a.order)
}
