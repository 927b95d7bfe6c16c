package model

import (
	"encoding/json"
	"slices"
	"unicode/utf8"
)

// Symbol pairs a character with the number of times it was observed within
// some scope (a document or the whole folder).
type Symbol struct {
	Char      rune
	Frequency int
}

// MarshalJSON renders Char as a one character string rather than a code
// point number.
func (s Symbol) MarshalJSON() ([]byte, error) {
	return json.Marshal(symbolJSON{Char: string(s.Char), Frequency: s.Frequency})
}

func (s *Symbol) UnmarshalJSON(b []byte) error {
	var v symbolJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s.Char, _ = utf8.DecodeRuneInString(v.Char)
	s.Frequency = v.Frequency
	return nil
}

type symbolJSON struct {
	Char      string `json:"char" yaml:"char"`
	Frequency int    `json:"frequency" yaml:"frequency"`
}

// MarshalYAML mirrors MarshalJSON for the YAML encoders.
func (s Symbol) MarshalYAML() (any, error) {
	return symbolJSON{Char: string(s.Char), Frequency: s.Frequency}, nil
}

// Symbols is a collection in which every character appears at most once.
type Symbols []Symbol

// SortByFrequency orders s by descending frequency. The sort is stable, so
// characters with equal frequency keep their discovery order.
func SortByFrequency(s Symbols) {
	slices.SortStableFunc(s, func(a, b Symbol) int {
		return b.Frequency - a.Frequency
	})
}

// Top returns at most n leading symbols. The result shares memory with s.
func (s Symbols) Top(n int) Symbols {
	if n < 0 || n >= len(s) {
		return s
	}
	return s[:n]
}

// Total is the sum of all frequencies.
func (s Symbols) Total() int {
	var total int
	for _, sym := range s {
		total += sym.Frequency
	}
	return total
}

// Frequency returns the count for r or 0 when r is absent.
func (s Symbols) Frequency(r rune) int {
	for _, sym := range s {
		if sym.Char == r {
			return sym.Frequency
		}
	}
	return 0
}

func (s Symbols) Clone() Symbols {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}
