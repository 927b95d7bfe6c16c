package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/CZERTAINLY/symstat/internal/model"
)

// SnapshotFile is the name OSRootEmitter writes to.
const SnapshotFile = "symstat-snapshot.json"

// NewEmitter builds the output configured in cfg. Snapshots go to stdout
// unless a directory is set.
func NewEmitter(_ context.Context, cfg model.Service, stdout io.Writer) (*MultiEmitter, error) {
	if cfg.Dir != "" {
		e, err := NewOSRootEmitter(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return NewMultiEmitter(e), nil
	}
	switch cfg.Format {
	case model.FormatJSON:
		return NewMultiEmitter(NewJSONEmitter(stdout)), nil
	case model.FormatText, "":
		return NewMultiEmitter(NewWriteEmitter(stdout, cfg.Top)), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", cfg.Format)
	}
}

const (
	rule      = "__________________________________________________"
	folderSep = "-----------------Folder statistics----------------"
)

// WriteEmitter prints snapshots for humans. At most top symbols are
// printed per document and for the folder.
type WriteEmitter struct {
	mx  sync.Mutex
	w   io.Writer
	top int
}

func NewWriteEmitter(w io.Writer, top int) *WriteEmitter {
	if w == nil {
		w = os.Stdout
	}
	if top <= 0 {
		top = model.DefaultTop
	}
	return &WriteEmitter{w: w, top: top}
}

func (e *WriteEmitter) Emit(_ context.Context, snap model.Snapshot) error {
	var sb strings.Builder
	sb.WriteString("\n" + rule + "\n")
	for _, doc := range snap.Documents {
		fmt.Fprintf(&sb, "\n      File: %s\nStatistics: (%s)\n", doc.Name, formatSymbols(doc.Top.Top(e.top), ", "))
	}
	sb.WriteString("\n" + folderSep + "\n")
	if len(snap.Merged) > 0 {
		sb.WriteString(formatSymbols(snap.Merged.Top(e.top), "\n"))
		sb.WriteString("\n")
	}
	sb.WriteString(rule + "\n")

	e.mx.Lock()
	defer e.mx.Unlock()
	_, err := io.WriteString(e.w, sb.String())
	return err
}

func formatSymbols(symbols model.Symbols, sep string) string {
	parts := make([]string, len(symbols))
	for i, s := range symbols {
		parts[i] = fmt.Sprintf("[%q] - %d", s.Char, s.Frequency)
	}
	return strings.Join(parts, sep)
}

// JSONEmitter writes one JSON document per line.
type JSONEmitter struct {
	mx  sync.Mutex
	enc *json.Encoder
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

func (e *JSONEmitter) Emit(_ context.Context, snap model.Snapshot) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if err := e.enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// OSRootEmitter keeps the latest snapshot in SnapshotFile inside a
// directory. The file is replaced by a rename, so readers never see a
// partial write.
type OSRootEmitter struct {
	mx   sync.Mutex
	root *os.Root
}

func NewOSRootEmitter(path string) (*OSRootEmitter, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot dir: %w", err)
	}
	return &OSRootEmitter{root: root}, nil
}

func (e *OSRootEmitter) Emit(ctx context.Context, snap model.Snapshot) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.root == nil {
		return errors.New("root already closed")
	}

	const tmp = SnapshotFile + ".tmp"
	f, err := e.root.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		return fmt.Errorf("saving snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := e.root.Rename(tmp, SnapshotFile); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	slog.DebugContext(ctx, "snapshot saved", "path", SnapshotFile, "sequence", snap.Sequence)
	return nil
}

func (e *OSRootEmitter) Close() error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.root == nil {
		return errors.New("emitter already closed")
	}
	err := e.root.Close()
	e.root = nil
	return err
}

// MultiEmitter fans a snapshot out to all emitters. Every emitter is
// called even if a previous one failed.
type MultiEmitter struct {
	emitters []model.Emitter
}

func NewMultiEmitter(emitters ...model.Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(ctx context.Context, snap model.Snapshot) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes the emitters implementing model.EmitCloser.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if closer, ok := e.(model.EmitCloser); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
