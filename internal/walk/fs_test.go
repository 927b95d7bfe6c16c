package walk_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/CZERTAINLY/symstat/internal/model"
	"github.com/CZERTAINLY/symstat/internal/stats"
	"github.com/CZERTAINLY/symstat/internal/walk"
	"github.com/stretchr/testify/require"
)

var txt = walk.MustMatcher("*" + model.Extension)

func TestDir_NilRoot(t *testing.T) {
	t.Parallel()
	counter := stats.New(t.Name())
	seq := walk.Dir(t.Context(), counter, nil, "fstest://", txt)
	// When root is nil, Dir should return a nil iterator and not panic.
	require.Nil(t, any(seq))
	for _, value := range counter.Stats() {
		require.Equal(t, "0", value)
	}
}

func TestDir_CanceledContext(t *testing.T) {
	t.Parallel()
	root := fstest.MapFS{
		"a.txt": &fstest.MapFile{Data: []byte("a"), Mode: 0o644},
		"b.txt": &fstest.MapFile{Data: []byte("bb"), Mode: 0o644},
	}
	ctx, cancel := context.WithCancel(t.Context())
	// cancel before iteration starts to exercise ctx.Err() early return path
	cancel()

	seq := walk.Dir(ctx, stats.New(t.Name()), root, "fstest://", txt)
	require.NotNil(t, seq)
	count := 0
	for range seq {
		count++
	}
	require.Equal(t, 0, count, "no entries should be yielded when context is canceled")
}

func TestDir_MissingFolder(t *testing.T) {
	t.Parallel()
	root := os.DirFS(filepath.Join(t.TempDir(), "missing"))
	var errs []error
	for entry, err := range walk.Dir(t.Context(), nil, root, "missing", txt) {
		require.Nil(t, entry)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], fs.ErrNotExist)
}

func TestFstest(t *testing.T) {
	t.Parallel()
	root := fstest.MapFS{
		"a.txt": &fstest.MapFile{
			Data:    []byte("aaa"),
			Mode:    0644,
			ModTime: time.Now(),
		},
		"notes.md": &fstest.MapFile{
			Data:    []byte("# skipped"),
			Mode:    0644,
			ModTime: time.Now(),
		},
		"b": &fstest.MapFile{
			Mode:    0755 | fs.ModeDir,
			ModTime: time.Now(),
		},
		"b/b.txt": &fstest.MapFile{
			Data:    []byte("bbbbbb"),
			Mode:    0644,
			ModTime: time.Now(),
		},
		"c.txt": &fstest.MapFile{
			Data:    []byte("cc"),
			Mode:    0644,
			ModTime: time.Now(),
		},
		"foo.txt": &fstest.MapFile{
			Mode:    0644 | fs.ModeSocket,
			ModTime: time.Now(),
		},
	}

	actual := make([]then, 0, 2)
	counter := stats.New(t.Name())
	for entry, err := range walk.Dir(t.Context(), counter, root, "fstest://", txt) {
		actual = append(actual, testEntry(t, entry, err))
	}

	// direct children only, in lexical order
	require.Equal(t,
		[]then{
			{path: filepath.Join("fstest://", "a.txt"), size: 3, content: "aaa"},
			{path: filepath.Join("fstest://", "c.txt"), size: 2, content: "cc"},
		},
		actual,
	)

	// the socket is excluded
	for key, value := range counter.Stats() {
		var exp = "0"
		if strings.HasSuffix(key, model.StatsFilesExcluded) {
			exp = "1"
		}
		require.Equal(t, exp, value, key)
	}
}

func TestDirOSRoot(t *testing.T) {
	t.Parallel()
	tempdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempdir, "hello.txt"), []byte("hello\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(tempdir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tempdir, "sub", "deep.txt"), []byte("deep"), 0o644))

	root, err := os.OpenRoot(tempdir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	var actual []then
	for entry, err := range walk.Dir(t.Context(), nil, root.FS(), tempdir, txt) {
		actual = append(actual, testEntry(t, entry, err))
	}
	require.Equal(t, []then{{path: filepath.Join(tempdir, "hello.txt"), size: 6, content: "hello\n"}}, actual)
}

func TestFile(t *testing.T) {
	t.Parallel()
	root := fstest.MapFS{
		"a.txt": &fstest.MapFile{Data: []byte("abc"), Mode: 0o644},
	}

	entry := walk.File(root, "/folder", "a.txt")
	require.Equal(t, filepath.Join("/folder", "a.txt"), entry.Path())
	require.Equal(t, then{path: entry.Path(), size: 3, content: "abc"}, testEntry(t, entry, nil))

	gone := walk.File(root, "/folder", "gone.txt")
	_, err := gone.Stat()
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = gone.Open()
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMatcher(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    string
		then     bool
	}{
		{"plain", "a.txt", true},
		{"absolute", "/srv/texts/a.txt", true},
		{"other extension", "a.md", false},
		{"suffix only", "atxt", false},
		{"txt inside name", "a.txt.bak", false},
		{"hidden", ".txt", true},
	}
	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			require.Equal(t, tt.then, txt.Match(tt.given))
		})
	}

	require.True(t, walk.Matcher{}.Match("anything"))
	_, err := walk.NewMatcher("[")
	require.Error(t, err)
}

type then struct {
	path    string
	size    int64
	content string
}

func testEntry(t *testing.T, entry model.Entry, err error) then {
	t.Helper()
	require.NoError(t, err)
	info, err := entry.Stat()
	require.NoError(t, err)
	f, err := entry.Open()
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return then{path: entry.Path(), size: info.Size(), content: string(b)}
}
