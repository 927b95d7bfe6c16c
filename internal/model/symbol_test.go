package model_test

import (
	"encoding/json"
	"testing"

	"github.com/CZERTAINLY/symstat/internal/model"

	"github.com/stretchr/testify/require"
)

func TestSortByFrequencyIsStable(t *testing.T) {
	t.Parallel()
	s := model.Symbols{{Char: 'c', Frequency: 1}, {Char: 'a', Frequency: 3}, {Char: 'b', Frequency: 1}, {Char: 'd', Frequency: 3}}
	model.SortByFrequency(s)
	require.Equal(t, model.Symbols{{Char: 'a', Frequency: 3}, {Char: 'd', Frequency: 3}, {Char: 'c', Frequency: 1}, {Char: 'b', Frequency: 1}}, s)
}

func TestSymbolsHelpers(t *testing.T) {
	t.Parallel()
	s := model.Symbols{{Char: 'a', Frequency: 3}, {Char: 'b', Frequency: 2}, {Char: 'c', Frequency: 1}}

	require.Equal(t, 6, s.Total())
	require.Equal(t, 2, s.Frequency('b'))
	require.Zero(t, s.Frequency('z'))
	require.Equal(t, model.Symbols{{Char: 'a', Frequency: 3}, {Char: 'b', Frequency: 2}}, s.Top(2))
	require.Equal(t, s, s.Top(10))
	require.Nil(t, model.Symbols(nil).Clone())

	c := s.Clone()
	c[0].Frequency = 100
	require.Equal(t, 3, s[0].Frequency)
}

func TestSymbolJSON(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(model.Symbols{{Char: 'ж', Frequency: 2}})
	require.NoError(t, err)
	require.JSONEq(t, `[{"char":"ж","frequency":2}]`, string(b))

	var s model.Symbols
	require.NoError(t, json.Unmarshal(b, &s))
	require.Equal(t, model.Symbols{{Char: 'ж', Frequency: 2}}, s)
}

func TestEventKindString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "created", model.Created.String())
	require.Equal(t, "changed", model.Changed.String())
	require.Equal(t, "deleted", model.Deleted.String())
	require.Equal(t, "renamed", model.Renamed.String())
	require.Equal(t, "unknown", model.EventKind(42).String())
}
