package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the knowledge folder watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context())
		},
	}
}

// serve runs the HTTP server and, when roots are configured, the folder watcher until
// ctx is cancelled or either of them fails.
func (a *app) serve(ctx context.Context) error {
	srv := server.NewServer(a.pipeline, a.indexer, a.store, &a.cfg.Server,
		server.WithLogger(a.logger),
		server.WithGatherer(a.registry),
		server.WithQuota(a.quota),
		server.WithAdminRole(a.cfg.Documents.PrivilegedRole))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var w *watcher.Watcher
	if len(a.cfg.Watch.Roots) > 0 {
		w = a.newWatcher()
		if err := w.Start(gctx); err != nil {
			a.logger.Error("Failed to start watcher", zap.Error(err))
		} else {
			g.Go(func() error {
				w.SyncExistingFiles()
				return nil
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down...")
		if w != nil {
			w.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Stop(shutdownCtx)
		a.Close(shutdownCtx)
		return err
	})
	return g.Wait()
}

// newWatcher ingests files dropped under <root>/<tenant>/ and removes deleted ones.
func (a *app) newWatcher() *watcher.Watcher {
	exts := a.cfg.Watch.Extensions
	return watcher.NewWatcher(
		a.cfg.Watch.Roots,
		exts,
		func(tenantID, path string) {
			if _, err := a.indexer.IngestFile(context.Background(), tenantID, path, exts); err != nil {
				a.logger.Warn("watch ingest failed", zap.String("tenant_id", tenantID), zap.String("path", path), zap.Error(err))
			}
		},
		func(tenantID, path string) {
			err := a.indexer.DeleteByFilename(context.Background(), tenantID, filepath.Base(path))
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				a.logger.Warn("watch delete failed", zap.String("tenant_id", tenantID), zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(a.logger),
	)
}
