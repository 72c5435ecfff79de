package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cragdb/api/internal/app"
	"cragdb/api/internal/store"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Apply pending migrations and serve the HTTP API",
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if !skipMigrations {
			applied, err := store.ApplyMigrations(ctx, e.db, e.cfg.MigrationsDir)
			if err != nil {
				return err
			}
			if len(applied) > 0 {
				e.log.WithField("versions", applied).Info("migrations applied")
			}
		}

		queryCache, closeCache := e.queryCache()
		defer closeCache()
		searchService, closeSearch := e.searchService()
		defer closeSearch()
		defer searchService.Wait()

		pg := store.NewPostgresStore(e.db, queryCache, e.cfg.CollationLocale)
		service := app.New(e.cfg, app.NewPostgresStore(pg), searchService, e.log)
		server := &http.Server{
			Addr:              e.cfg.Addr,
			Handler:           app.NewHTTPServer(service, e.log).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		failed := make(chan error, 1)
		go func() {
			e.log.WithField("addr", e.cfg.Addr).Info("cragdb API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				failed <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-failed:
			return err
		case <-sigCh:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			e.log.WithError(err).Warn("shutdown")
		}
		return nil
	}
	return cmd
}
