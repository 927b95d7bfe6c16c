package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CZERTAINLY/symstat/internal/model"
)

// pairer turns raw fsnotify events into model events. fsnotify reports a
// rename within a watched folder as Rename(old) followed by Create(new);
// the two are joined when the Create arrives within window. A Rename
// without a matching Create means the file left the folder.
type pairer struct {
	window  time.Duration
	match   func(string) bool
	pending string
	at      time.Time
}

func newPairer(window time.Duration, match func(string) bool) *pairer {
	return &pairer{window: window, match: match}
}

// push translates ev observed at now. Events for names which don't match
// are dropped, ignored counts them.
func (p *pairer) push(ev fsnotify.Event, now time.Time) (out []model.Event, ignored int) {
	out = p.expire(now)

	emit := func(kind model.EventKind, path string) {
		if !p.match(path) {
			ignored++
			return
		}
		out = append(out, model.Event{Kind: kind, Path: path, Time: now})
	}

	switch {
	case ev.Has(fsnotify.Create) && p.pending != "":
		old := p.pending
		p.pending = ""
		switch oldOK, newOK := p.match(old), p.match(ev.Name); {
		case oldOK && newOK:
			out = append(out, model.Event{Kind: model.Renamed, OldPath: old, Path: ev.Name, Time: now})
		case oldOK:
			out = append(out, model.Event{Kind: model.Deleted, Path: old, Time: now})
		case newOK:
			out = append(out, model.Event{Kind: model.Created, Path: ev.Name, Time: now})
		default:
			ignored++
		}
	case ev.Has(fsnotify.Create):
		emit(model.Created, ev.Name)
	case ev.Has(fsnotify.Rename):
		out = append(out, p.flush(now)...)
		p.pending = ev.Name
		p.at = now
		return out, ignored
	case ev.Has(fsnotify.Remove):
		emit(model.Deleted, ev.Name)
	case ev.Has(fsnotify.Write):
		emit(model.Changed, ev.Name)
	default:
		// chmod
		ignored++
	}
	return out, ignored
}

// expire reports a pending rename as Deleted once the window has passed.
func (p *pairer) expire(now time.Time) []model.Event {
	if p.pending == "" || now.Sub(p.at) < p.window {
		return nil
	}
	return p.flush(now)
}

func (p *pairer) flush(now time.Time) []model.Event {
	if p.pending == "" {
		return nil
	}
	old := p.pending
	p.pending = ""
	if !p.match(old) {
		return nil
	}
	return []model.Event{{Kind: model.Deleted, Path: old, Time: now}}
}

// deadline is when a pending rename expires.
func (p *pairer) deadline() (time.Time, bool) {
	if p.pending == "" {
		return time.Time{}, false
	}
	return p.at.Add(p.window), true
}
