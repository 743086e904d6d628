package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "lebonpont/internal/adapters/http_server"
	"lebonpont/internal/adapters/observability"
	redisad "lebonpont/internal/adapters/redis"
	"lebonpont/internal/adapters/supabase"
	"lebonpont/internal/app"
	"lebonpont/internal/domain"
	"lebonpont/internal/imaging"
	"lebonpont/internal/shared"
	"lebonpont/internal/shared/geoloc"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve(cfg.MetricsAddr)

	// remote backend
	client, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey, cfg.RemoteRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("backend client init failed")
	}
	store := supabase.NewStore(client)
	objects := supabase.NewObjects(client, cfg.StorageBucket)
	auth := supabase.NewAuth(client)

	// deps
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	listing := app.NewListingService(store, cache, cfg.CacheTTL())
	submit := app.NewSubmitService(store, objects, imaging.NewResizer())
	session := app.NewSession(context.Background(), auth)
	defer session.Close()

	geo := geoloc.New(nil, domain.Coord{Lat: cfg.FallbackLat, Lng: cfg.FallbackLng})

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Listing: listing,
		Submit:  submit,
		Auth:    auth,
		Geo:     geo,
		Store:   store,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-done
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
