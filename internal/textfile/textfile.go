// Package textfile computes character statistics for a single text file.
package textfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/CZERTAINLY/symstat/internal/model"
)

// MaxSize is the largest file Scan reads. Bigger files fail with
// model.ErrTooBig.
const MaxSize = 10 * 1024 * 1024

// Document is one tracked text file and the statistics derived from its
// content at the time of the last scan.
type Document struct {
	Path     string
	Hash     [sha256.Size]byte
	Encoding Encoding
	// Symbols is ordered by descending frequency, ties in discovery order.
	Symbols model.Symbols
	// Total counts characters other than '\n' and '\r'.
	Total int
}

// ScanError reports a file that could not be read or decoded.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scanning %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err comes from a file which disappeared
// between the notification and the read.
func IsTransient(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Scan reads entry and returns a new Document for it.
func Scan(ctx context.Context, entry model.Entry) (*Document, error) {
	d := &Document{Path: entry.Path()}
	if err := d.Rescan(ctx, entry); err != nil {
		return nil, err
	}
	return d, nil
}

// Rescan re-reads entry and replaces hash, encoding and statistics. Path is
// kept. Encoding is detected again, so a byte-order mark added or removed
// by the last write is honoured. On error the document is left unchanged.
func (d *Document) Rescan(ctx context.Context, entry model.Entry) error {
	raw, err := read(ctx, entry)
	if err != nil {
		return &ScanError{Path: entry.Path(), Err: err}
	}

	enc := DetectEncoding(raw)
	text, err := Decode(enc, raw)
	if err != nil {
		return &ScanError{Path: entry.Path(), Err: err}
	}

	symbols, total := Count(text)
	d.Hash = sha256.Sum256(raw)
	d.Encoding = enc
	d.Symbols = symbols
	d.Total = total
	return nil
}

func read(ctx context.Context, entry model.Entry) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := entry.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() > MaxSize {
		return nil, fmt.Errorf("%d bytes: %w", info.Size(), model.ErrTooBig)
	}

	f, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() {
		_ = f.Close() // read only
	}()

	// the file may grow between Stat and ReadAll
	raw, err := io.ReadAll(io.LimitReader(f, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(raw) > MaxSize {
		return nil, fmt.Errorf("more than %d bytes: %w", MaxSize, model.ErrTooBig)
	}
	return raw, nil
}

// Count builds the symbol statistics of text, skipping line feeds and
// carriage returns. The returned total equals the sum of all frequencies.
func Count(text string) (model.Symbols, int) {
	var (
		symbols model.Symbols
		total   int
		index   = make(map[rune]int)
	)
	for _, r := range text {
		if r == '\n' || r == '\r' {
			continue
		}
		total++
		if i, ok := index[r]; ok {
			symbols[i].Frequency++
			continue
		}
		index[r] = len(symbols)
		symbols = append(symbols, model.Symbol{Char: r, Frequency: 1})
	}
	model.SortByFrequency(symbols)
	return symbols, total
}

// Name is the display name of the document.
func (d *Document) Name() string {
	return filepath.Base(d.Path)
}

func (d *Document) HashString() string {
	return hex.EncodeToString(d.Hash[:])
}

// View projects the document for output, keeping top symbols.
func (d *Document) View(top int) model.DocumentView {
	return model.DocumentView{
		Name:     d.Name(),
		Path:     d.Path,
		Hash:     d.HashString(),
		Encoding: d.Encoding.String(),
		Total:    d.Total,
		Top:      d.Symbols.Top(top).Clone(),
	}
}
