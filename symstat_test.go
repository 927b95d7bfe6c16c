package symstat_test

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/CZERTAINLY/symstat/internal/model"

	"github.com/stretchr/testify/require"
)

var (
	symstatPath string
	keepTestDir bool

	// tmpDir is a function used to create a tempdir
	// -test.keepdir flag tells the test to use os.MkdirTemp
	// default is t.TempDir, which will be cleaned up
	tmpDir func(t *testing.T) string
)

func TestMain(m *testing.M) {
	flag.BoolVar(&keepTestDir, "test.keepdir", false, "use os.TempDir instead of t.TempDir to keep test artifacts")

	flag.Parse()

	if testing.Short() {
		slog.Warn("integration tests are ignored with -short")
		os.Exit(0)
	}

	if !keepTestDir {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			return t.TempDir()
		}
	} else {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			dir, err := os.MkdirTemp("", "symstat*")
			require.NoError(t, err)
			_, err = fmt.Fprintf(t.Output(), "TEMPDIR %s: -test.keepdir used, so it won't be automatically deleted\n", dir)
			require.NoError(t, err)
			return dir
		}
	}

	if !isExecutable("symstat-ci") {
		slog.Error("cannot locate symstat-ci binary: run go build -race -cover -covermode=atomic -o symstat-ci ./cmd/symstat/ first")
		os.Exit(1)
	}

	var err error
	symstatPath, err = filepath.Abs("symstat-ci")
	if err != nil {
		slog.Error("can't get abspath for symstat-ci", "error", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// snapshots reads json snapshots from r until it is closed
func snapshots(r io.Reader) <-chan model.Snapshot {
	ch := make(chan model.Snapshot, 16)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			var snap model.Snapshot
			if err := json.Unmarshal(scanner.Bytes(), &snap); err != nil {
				continue
			}
			ch <- snap
		}
	}()
	return ch
}

// waitFor returns the first snapshot satisfying cond
func waitFor(t *testing.T, ch <-chan model.Snapshot, cond func(model.Snapshot) bool) model.Snapshot {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "symstat has ended")
			if cond(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timeout waiting for a snapshot")
		}
	}
}

func names(snap model.Snapshot) []string {
	var ret []string
	for _, doc := range snap.Documents {
		ret = append(ret, doc.Name)
	}
	return ret
}

func TestWatch(t *testing.T) {
	t.Parallel()
	dir := tmpDir(t)
	folder := filepath.Join(dir, "folder")
	require.NoError(t, os.Mkdir(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "a.txt"), []byte("aa"), 0o644))

	config := filepath.Join(dir, "symstat.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`
version: 0
service:
  format: json
  verbose: true
  log: `+filepath.Join(dir, "symstat.log")+`
`), 0o644))

	cmd := exec.CommandContext(t.Context(), symstatPath, "watch", "--config", config, folder)
	cmd.Env = append(os.Environ(), "GOCOVERDIR="+dir)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Signal(os.Interrupt)
		_ = cmd.Wait()
	})
	ch := snapshots(stdout)

	initial := waitFor(t, ch, func(model.Snapshot) bool { return true })
	require.Equal(t, uint64(1), initial.Sequence)
	require.Equal(t, []string{"a.txt"}, names(initial))
	require.Equal(t, model.Symbols{{Char: 'a', Frequency: 2}}, initial.Merged)

	// new file
	require.NoError(t, os.WriteFile(filepath.Join(folder, "b.txt"), []byte("bb"), 0o644))
	waitFor(t, ch, func(s model.Snapshot) bool {
		return len(s.Merged) == 2 && s.Merged[1].Char == 'b' && s.Merged[1].Frequency == 2
	})

	// duplicate is not tracked
	require.NoError(t, os.WriteFile(filepath.Join(folder, "copy.txt"), []byte("bb"), 0o644))
	// other extensions are ignored
	require.NoError(t, os.WriteFile(filepath.Join(folder, "c.md"), []byte("ccc"), 0o644))

	// change
	require.NoError(t, os.WriteFile(filepath.Join(folder, "a.txt"), []byte("aaaa"), 0o644))
	snap := waitFor(t, ch, func(s model.Snapshot) bool {
		return len(s.Merged) > 0 && s.Merged[0].Char == 'a' && s.Merged[0].Frequency == 4
	})
	require.Equal(t, []string{"a.txt", "b.txt"}, names(snap))

	// rename
	require.NoError(t, os.Rename(filepath.Join(folder, "a.txt"), filepath.Join(folder, "z.txt")))
	snap = waitFor(t, ch, func(s model.Snapshot) bool {
		return len(s.Documents) > 0 && s.Documents[0].Name == "z.txt"
	})
	require.Equal(t, model.Symbol{Char: 'a', Frequency: 4}, snap.Merged[0])

	// delete
	require.NoError(t, os.Remove(filepath.Join(folder, "z.txt")))
	snap = waitFor(t, ch, func(s model.Snapshot) bool {
		return len(s.Documents) == 1
	})
	require.Equal(t, []string{"b.txt"}, names(snap))
	require.Equal(t, model.Symbols{{Char: 'b', Frequency: 2}}, snap.Merged)

	require.NoError(t, cmd.Process.Signal(os.Interrupt))
	require.NoError(t, cmd.Wait())
}

func TestScanMissingFolder(t *testing.T) {
	t.Parallel()
	dir := tmpDir(t)
	config := filepath.Join(dir, "symstat.yaml")
	require.NoError(t, os.WriteFile(config, []byte("version: 0\nservice:\n  log: discard\n"), 0o644))

	cmd := exec.CommandContext(t.Context(), symstatPath, "scan", "--config", config, filepath.Join(dir, "missing"))
	cmd.Env = append(os.Environ(), "GOCOVERDIR="+dir)
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.ExitCode())
}
