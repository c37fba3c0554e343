package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/ai"
	"github.com/keshon/warden/internal/audio"
	"github.com/keshon/warden/internal/audio/opus"
	"github.com/keshon/warden/internal/config"
	"github.com/keshon/warden/internal/discord"
	"github.com/keshon/warden/internal/docs"
	"github.com/keshon/warden/internal/erlc"
	"github.com/keshon/warden/internal/eventlog"
	"github.com/keshon/warden/internal/logger"
	"github.com/keshon/warden/internal/metrics"
	"github.com/keshon/warden/internal/misc"
	"github.com/keshon/warden/internal/music"
	"github.com/keshon/warden/internal/prc"
	"github.com/keshon/warden/internal/state"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/internal/voice"
	"github.com/keshon/warden/internal/welcome"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/keshon/warden/pkg/jobmgr"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, closer := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer closer.Close()
	if dotenv {
		log.Debug().Msg("loaded .env")
	}

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("bot stopped with error")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("bot exited cleanly")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	erlcStore, err := storage.Open(cfg.DataFile("erlc.json"), storage.Options[erlc.Settings]{
		Layout: storage.Wrapped, Default: erlc.DefaultSettings, Logger: log,
	})
	if err != nil {
		return fmt.Errorf("open erlc settings: %w", err)
	}
	logStore, err := storage.Open(cfg.DataFile("logging.json"), storage.Options[eventlog.Settings]{
		Layout: storage.Wrapped, Default: eventlog.DefaultSettings, Logger: log,
	})
	if err != nil {
		return fmt.Errorf("open logging settings: %w", err)
	}
	welcomeStore, err := storage.Open(cfg.DataFile("welcome.json"), storage.Options[welcome.Settings]{
		Layout: storage.Flat, Default: welcome.DefaultSettings, Logger: log,
	})
	if err != nil {
		return fmt.Errorf("open welcome settings: %w", err)
	}

	m := metrics.New()
	reg := cmd.NewRegistry()
	bot, err := discord.NewBot(reg, discord.BotOptions{
		Token:    cfg.DiscordToken,
		Prefix:   cfg.Prefix,
		Logger:   log,
		Observer: m,
	})
	if err != nil {
		return err
	}
	dg := bot.Session()
	botID := func() string {
		if dg.State != nil && dg.State.User != nil {
			return dg.State.User.ID
		}
		return ""
	}

	jobs := jobmgr.NewManager(ctx, jobmgr.LogReporter(log))
	runtime := state.New()
	api := prc.New(prc.Options{BaseURL: cfg.ERLCAPIURL, OnResponse: m.ObserveERLC})

	erlcPlugin := erlc.New(erlc.Options{
		Store:             erlcStore,
		API:               api,
		Session:           dg,
		Jobs:              jobs,
		Logger:            log.With().Str("component", "erlc").Logger(),
		BotUserID:         botID,
		AutoBoostInterval: cfg.AutoBoostInterval,
		Refreshers:        m.Refreshers(),
	})
	logPlugin := eventlog.New(eventlog.Options{
		Store:     logStore,
		Session:   dg,
		State:     runtime,
		Logger:    log,
		BotUserID: botID,
	})
	welcomePlugin := welcome.New(welcome.Options{
		Store:   welcomeStore,
		Session: dg,
		Logger:  log,
		Guild:   dg.State.Guild,
	})
	miscPlugin := misc.New(misc.Options{
		Session:   dg,
		State:     runtime,
		Logger:    log,
		Prefix:    cfg.Prefix,
		Allowed:   cfg.IsAllowed,
		BotUserID: botID,
		Started:   time.Now(),
	})

	voices := audio.NewManager(audio.Options{
		Dial:       audio.DiscordDialer(dg),
		Decoder:    audio.FFmpeg{},
		NewEncoder: opus.NewEncoder,
		Logger:     log,
	})
	defer voices.Close()
	userChannel := audio.UserChannel(dg)

	provider := ai.NewProvider(ai.ProviderOptions{OpenAIKey: cfg.OpenAIKey, OpenAIModel: cfg.OpenAIModel})
	log.Info().Str("provider", provider.Name()).Msg("ai provider selected")

	mods := [][]cmd.Module{
		erlcPlugin.Modules(),
		logPlugin.Modules(),
		welcomePlugin.Modules(),
		miscPlugin.Modules(),
		{docs.Help(reg, cfg.Prefix)},
		ai.Modules(provider, ai.NewStability(cfg.StabilityAPIKey, "")),
		music.Modules(music.NewPlayers(music.NewYouTube(), voices, log), userChannel),
		voice.Modules(voice.Options{
			Audio:       voices,
			Session:     dg,
			UserChannel: userChannel,
			BotUserID:   botID,
			Logger:      log,
		}),
	}
	for _, group := range mods {
		if err := reg.Load(group...); err != nil {
			return fmt.Errorf("register commands: %w", err)
		}
	}
	bot.Listen(logPlugin, welcomePlugin, miscPlugin)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, func() bool { return dg.DataReady }, log); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	log.Info().
		Int("slash", len(reg.Commands(cmd.KindSlash))).
		Int("prefix", len(reg.Commands(cmd.KindPrefix))).
		Msg("starting discord bot")
	runErr := bot.Run(ctx)

	shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := jobs.StopAll(shutdown); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("background jobs did not stop cleanly")
	}
	return runErr
}

// compile-time checks that the session satisfies the feature interfaces
var (
	_ erlc.Session     = (*discordgo.Session)(nil)
	_ eventlog.Session = (*discordgo.Session)(nil)
	_ welcome.Session  = (*discordgo.Session)(nil)
	_ misc.Session     = (*discordgo.Session)(nil)
	_ voice.Session    = (*discordgo.Session)(nil)
)
