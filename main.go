package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	composerx "github.com/sjin4861/deepcatch-agent/agent/composer"
	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	extractx "github.com/sjin4861/deepcatch-agent/agent/extract"
	pipelinex "github.com/sjin4861/deepcatch-agent/agent/pipeline"
	servicesx "github.com/sjin4861/deepcatch-agent/agent/services"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
	toolx "github.com/sjin4861/deepcatch-agent/agent/tool"
	serverx "github.com/sjin4861/deepcatch-agent/server"

	configx "github.com/sjin4861/deepcatch-agent/pkg/config"
	_ "github.com/sjin4861/deepcatch-agent/pkg/logger/autoload"
	openrouterx "github.com/sjin4861/deepcatch-agent/pkg/openrouter"
	telephonyx "github.com/sjin4861/deepcatch-agent/pkg/telephony"
)

func main() {
	ctx := context.Background()

	postgresCfg := configx.MustNew[statex.PostgresConfig]("POSTGRES")
	db, err := statex.OpenDB(*postgresCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	store := statex.NewPostgresStoreFromDB(db)

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")

	var composer contractx.Composer
	if chatModel, err := openRouterCfg.New(ctx); err != nil {
		log.Warn().Err(err).Msg("chat model unavailable, replies use the fallback template")
	} else if generative, err := composerx.NewGenerative(ctx, chatModel); err != nil {
		log.Warn().Err(err).Msg("composer graph failed to compile, replies use the fallback template")
	} else {
		composer = generative
	}

	var extractor extractx.Extractor = extractx.NewHeuristicExtractor()
	if client := openrouterx.NewClient(*openRouterCfg); client != nil {
		extractor = extractx.NewLLMExtractor(client, openRouterCfg.Model)
	}

	var caller servicesx.Caller
	if telephonyCfg, err := configx.New[telephonyx.Config]("TELEPHONY"); err != nil {
		log.Warn().Err(err).Msg("telephony not configured, reservation calls disabled")
	} else if client, err := telephonyx.NewClient(*telephonyCfg); err != nil {
		log.Warn().Err(err).Msg("telephony client rejected config, reservation calls disabled")
	} else {
		caller = client
	}

	services := servicesx.New(db, caller)
	registry, err := toolx.DefaultRegistry(extractor)
	if err != nil {
		log.Fatal().Err(err).Msg("build capability registry")
	}

	pipeline, err := pipelinex.New(store, services, registry, composer)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}

	serverCfg := configx.MustNew[serverx.Config]("SERVER")
	srv := serverx.New(*serverCfg, pipeline)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("http server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}
