// Package app wires the configured datastore, object store and services into
// one ready-to-use application context for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/datastore"
	"github.com/phenobase/fieldstore/internal/hierarchy"
	"github.com/phenobase/fieldstore/internal/ingest"
	"github.com/phenobase/fieldstore/internal/logging"
	"github.com/phenobase/fieldstore/internal/objectstore"
	"github.com/phenobase/fieldstore/internal/observability"
	"github.com/phenobase/fieldstore/internal/search"
)

// App bundles the wired components behind a single Close.
type App struct {
	Settings *conf.Settings
	Store    datastore.Interface
	Objects  objectstore.Store
	Resolver *hierarchy.Resolver
	Pipeline *ingest.Pipeline
	Search   *search.Service
	Metrics  *observability.Metrics

	metricsServer *http.Server
}

// New opens the configured stores and constructs the services on top of
// them. The caller owns the returned App and must Close it.
func New(ctx context.Context, settings *conf.Settings) (*App, error) {
	store := datastore.New(settings)
	if store == nil {
		return nil, fmt.Errorf("no database backend enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	objects, err := objectstore.New(ctx, settings, metrics.ObjectStore)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	resolver := hierarchy.NewResolver(store)
	pipeline := ingest.New(settings, store, objects, resolver)
	pipeline.SetMetrics(metrics.Ingest)
	searchSvc := search.NewService(store, objects, settings.Storage.PresignExpiry)
	searchSvc.SetMetrics(metrics.Ingest)

	a := &App{
		Settings: settings,
		Store:    store,
		Objects:  objects,
		Resolver: resolver,
		Pipeline: pipeline,
		Search:   searchSvc,
		Metrics:  metrics,
	}

	if settings.Main.Metrics.Enabled {
		a.metricsServer = serveMetrics(settings.Main.Metrics.Listen, metrics)
	}

	return a, nil
}

// serveMetrics exposes /metrics on the given address for the lifetime of the
// process.
func serveMetrics(listen string, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux)
	srv := &http.Server{Addr: listen, Handler: mux}
	log := logging.ForService("observability")
	go func() {
		log.Info("metrics endpoint listening", "address", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics endpoint failed", "error", err)
		}
	}()
	return srv
}

// Close stops the metrics endpoint and releases the datastore connection.
func (a *App) Close() error {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx)
	}
	return a.Store.Close()
}
