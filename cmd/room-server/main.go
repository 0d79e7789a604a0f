package main

import (
	"context"
	"net/http"
	"time"

	"velvet-rooms/internal/billing"
	"velvet-rooms/internal/broadcast"
	"velvet-rooms/internal/config"
	"velvet-rooms/internal/engine"
	"velvet-rooms/internal/logging"
	"velvet-rooms/internal/notify"
	"velvet-rooms/internal/reveal"
	"velvet-rooms/internal/slots"
	"velvet-rooms/internal/store"
	httptransport "velvet-rooms/internal/transport/http"
	"velvet-rooms/internal/wallet"

	"github.com/rs/zerolog/log"
)

// db is the union of the persistence slices the components carry. Both store
// bindings satisfy it.
type db interface {
	engine.Store
	wallet.Store
	slots.Store
	billing.Store
	reveal.Store
	httptransport.Pinger
}

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}
	billingCfg, err := config.LoadBilling()
	if err != nil {
		log.Fatal().Err(err).Msg("load billing config failed")
	}
	roomCfg, err := config.LoadRoom()
	if err != nil {
		log.Fatal().Err(err).Msg("load room config failed")
	}

	var st db
	if cfg.DevMode {
		log.Warn().Msg("dev mode: using in-memory store, state is not durable")
		st = store.NewMem()
	} else {
		pg, err := store.New(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("store init failed")
		}
		if err := pg.Ping(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("db ping failed")
		}
		defer pg.Close()
		st = pg
	}

	led := wallet.New(st)
	alloc := slots.New(st, roomCfg.SlotClaimRetries)
	meter := billing.NewMeter(st, led, billingCfg)
	reveals := reveal.New(st, led, reveal.DefaultPool())
	hub := broadcast.NewHub(500)

	notifier := notify.New(notify.Config{WebhookURL: cfg.NotifyWebhookURL})
	notifier.Start(context.Background())

	eng := engine.New(st, led, alloc, meter, reveals, hub, notifier, roomCfg, billingCfg)
	defer eng.Shutdown()

	if err := eng.ResumeBilling(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("resume billing failed")
	}

	r := httptransport.NewRouter(eng, led, st, cfg)
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}
