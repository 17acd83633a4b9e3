package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/riddlerush/internal/config"
	"github.com/robalobadob/riddlerush/internal/game"
	"github.com/robalobadob/riddlerush/internal/httpserver"
	"github.com/robalobadob/riddlerush/internal/metrics"
	"github.com/robalobadob/riddlerush/internal/riddles"
	"github.com/robalobadob/riddlerush/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.LogConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := riddles.Load(cfg.RiddlesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load riddle catalog")
	}

	src, err := openRiddleSource(ctx, cfg, catalog)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.RiddleSource).Msg("failed to open riddle source")
	}
	defer src.close()

	hints := riddles.Hinter{Latency: cfg.ProviderLatency}
	checker := riddles.Checker{Latency: cfg.ProviderLatency}
	rules := game.Config{TotalRounds: cfg.TotalRounds, RoundSeconds: cfg.RoundSeconds}

	mem := store.NewMemoryStore()
	go store.RunSweeper(ctx, mem, time.Minute, cfg.SessionIdle, func(live int) {
		metrics.Sessions.Set(float64(live))
	})

	srv := httpserver.New(cfg, httpserver.Deps{
		Store: mem,
		NewEngine: func(id string) *game.Engine {
			return game.New(src.provider, hints, checker,
				game.WithConfig(rules),
				game.WithRecorder(metrics.Recorder{}),
				game.WithLogger(log.With().Str("session", id).Logger()))
		},
		RiddleStats: src.stats,
	})

	log.Info().
		Str("port", cfg.Port).
		Str("riddles", cfg.RiddleSource).
		Int("catalog", catalog.Len()).
		Msg("starting riddle server")
	if err := srv.Start(ctx, ":"+cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	if err := mem.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("stop sessions")
	}
	log.Info().Msg("server stopped")
}

// riddleSource is the provider that serves riddles plus what /debug/riddles
// reports about it.
type riddleSource struct {
	provider game.RiddleProvider
	stats    func() map[game.Difficulty]int
	close    func()
}

// openRiddleSource picks the riddle source named by RIDDLE_SOURCE. The SQLite
// bank is seeded from the catalog the first time it is opened; after that
// its rows, not the catalog, are what players get, so its stats come from
// the bank.
func openRiddleSource(ctx context.Context, cfg *config.Config, catalog *riddles.Catalog) (*riddleSource, error) {
	if cfg.RiddleSource != config.SourceSQLite {
		return &riddleSource{
			provider: &riddles.CatalogProvider{Catalog: catalog, Latency: cfg.ProviderLatency},
			stats:    catalog.Stats,
			close:    func() {},
		}, nil
	}

	bank, err := riddles.OpenSQLiteBank(ctx, cfg.RiddleDB)
	if err != nil {
		return nil, err
	}
	n, err := bank.Seed(ctx, catalog)
	if err != nil {
		_ = bank.Close()
		return nil, err
	}
	if n > 0 {
		log.Info().Int("riddles", n).Str("db", cfg.RiddleDB).Msg("seeded riddle bank")
	}
	bank.Latency = cfg.ProviderLatency

	stats := func() map[game.Difficulty]int {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := bank.Stats(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("riddle bank stats")
			return map[game.Difficulty]int{}
		}
		return st
	}
	return &riddleSource{
		provider: bank,
		stats:    stats,
		close:    func() { _ = bank.Close() },
	}, nil
}
