package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CZERTAINLY/symstat/internal/api"
	"github.com/CZERTAINLY/symstat/internal/folder"
	"github.com/CZERTAINLY/symstat/internal/log"
	"github.com/CZERTAINLY/symstat/internal/model"
	"github.com/CZERTAINLY/symstat/internal/service"
	"github.com/CZERTAINLY/symstat/internal/stats"
	"github.com/CZERTAINLY/symstat/internal/walk"
	"github.com/CZERTAINLY/symstat/internal/watcher"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultHttpServerGracefulPeriod = 5 * time.Second

var (
	match = walk.MustMatcher("*" + model.Extension)
	// expvar names are global, so the counters are shared by all runs
	counter = sync.OnceValue(func() *stats.Stats {
		return stats.New("symstat")
	})
)

// app holds the components shared by watch and scan.
type app struct {
	config  model.Config
	folder  string
	session string
	counter *stats.Stats
	root    *os.Root
	emitter *service.MultiEmitter
	agg     *folder.Aggregator
}

func newApp(ctx context.Context, config model.Config, path string, stdout io.Writer) (*app, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrFolder, err)
	}
	emitter, err := service.NewEmitter(ctx, config.Service, stdout)
	if err != nil {
		_ = root.Close()
		return nil, err
	}

	a := &app{
		config:  config,
		folder:  path,
		session: uuid.NewString(),
		counter: counter(),
		root:    root,
		emitter: emitter,
	}
	a.agg = folder.New(folder.Config{
		Root:    root.FS(),
		Folder:  path,
		Match:   match,
		Counter: a.counter,
		Emitter: emitter,
		Session: a.session,
		Top:     config.Service.Top,
		Workers: config.Service.Workers,
	})
	return a, nil
}

func (a *app) Close() error {
	return errors.Join(a.emitter.Close(), a.root.Close())
}

func (a *app) context(ctx context.Context, cmd string) context.Context {
	attrs := slog.Group("symstat",
		slog.String("cmd", cmd),
		slog.Int("pid", os.Getpid()),
		slog.String("session", a.session),
	)
	return log.ContextAttrs(ctx, attrs)
}

func doScan(cmd *cobra.Command, args []string) error {
	config, logCloser, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	defer func() {
		_ = logCloser.Close()
	}()

	path, err := resolveFolder(args, config, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), config, path, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	ctx := a.context(cmd.Context(), "scan")
	return a.agg.Initialize(ctx)
}

func doWatch(cmd *cobra.Command, args []string) error {
	config, logCloser, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	defer func() {
		_ = logCloser.Close()
	}()

	path, err := resolveFolder(args, config, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, config, path, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.ErrorContext(ctx, "closing", "error", err)
		}
	}()
	ctx = a.context(ctx, "watch")
	slog.DebugContext(ctx, "", "environ", os.Environ())

	window, err := config.Service.RenameWindowDuration()
	if err != nil {
		return err
	}
	w, err := watcher.New(watcher.Config{
		Folder:       path,
		Match:        match,
		Queue:        config.Service.Queue,
		RenameWindow: window,
		Counter:      a.counter,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrFolder, err)
	}
	defer func() {
		_ = w.Stop()
	}()

	// watch first, so files created during the initial scan are not lost
	events, err := w.Start(ctx)
	if err != nil {
		return err
	}
	if err := a.agg.Initialize(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "watching", "folder", path, "documents", a.agg.Len())

	supervisor, err := service.NewSupervisor(ctx, config.Service, a.agg, events, a.counter)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Do(ctx)
	})

	if config.Service.Server != nil && config.Service.Server.Addr != "" {
		srv := &http.Server{
			Addr:              config.Service.Server.Addr,
			Handler:           api.New(a.agg, config.Service.Top).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.InfoContext(ctx, "Starting http server.", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), defaultHttpServerGracefulPeriod)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.InfoContext(ctx, "Http server shutdown error.", slog.String("error", err.Error()))
			} else {
				slog.InfoContext(ctx, "Http server shutdown gracefully.")
			}
			return nil
		})
	}

	return g.Wait()
}
