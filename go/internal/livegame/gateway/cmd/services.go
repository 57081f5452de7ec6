package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/config"
	"github.com/mcdev12/courtside/go/internal/dbconfig"
	"github.com/mcdev12/courtside/go/internal/games"
	"github.com/mcdev12/courtside/go/internal/livegame/stats"
)

func setupStore(ctx context.Context, cfg *config.Config) (games.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := dbconfig.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		log.Info().
			Str("database", cfg.Database.Database).
			Str("host", cfg.Database.Host).
			Msg("connected to postgres")
		return games.NewPostgresStore(pool), pool.Close, nil

	default:
		store, err := games.LoadFixtures(cfg.Store.Fixtures)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("fixtures", cfg.Store.Fixtures).Msg("using in-memory game store")
		return store, func() {}, nil
	}
}

// statPipeline is the forwarder sessions hand deltas to, plus whatever it
// delivers through
type statPipeline struct {
	forwarder *stats.Forwarder
	nc        *nats.Conn
	done      chan struct{}
	workers   int
}

func (p *statPipeline) wait() {
	for i := 0; i < p.workers; i++ {
		<-p.done
	}
}

func (p *statPipeline) close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

func (p *statPipeline) run(fn func()) {
	p.workers++
	go func() {
		fn()
		p.done <- struct{}{}
	}()
}

func setupStats(ctx context.Context, cfg *config.Config, store games.Store) (*statPipeline, error) {
	fcfg := stats.ForwarderConfig{
		Workers:         cfg.Stats.Workers,
		InitialInterval: cfg.Stats.InitialInterval,
		MaxInterval:     cfg.Stats.MaxInterval,
		MaxElapsed:      cfg.Stats.MaxElapsed,
	}
	p := &statPipeline{done: make(chan struct{}, 2)}

	if cfg.Stats.Mode != config.StatsJetStream {
		p.forwarder = stats.NewForwarder(stats.StoreTarget(store), fcfg)
		p.run(func() { p.forwarder.Start(ctx) })
		return p, nil
	}

	jcfg := stats.DefaultJetStreamConfig()
	jcfg.URL = cfg.Stats.NATSURL
	jcfg.StreamName = cfg.Stats.Stream
	jcfg.SubjectPrefix = cfg.Stats.SubjectPrefix
	jcfg.ConsumerName = cfg.Stats.Consumer

	nc, js, err := stats.Connect(ctx, jcfg)
	if err != nil {
		return nil, fmt.Errorf("connect stat stream: %w", err)
	}
	p.nc = nc

	p.forwarder = stats.NewForwarder(stats.NewJetStreamPublisher(js, jcfg), fcfg)
	consumer := stats.NewJetStreamConsumer(js, store, jcfg)

	p.run(func() { p.forwarder.Start(ctx) })
	p.run(func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("stat delta consumer failed")
		}
	})
	return p, nil
}
