// Command warden-cli inspects stored settings, lists and publishes the slash
// commands, and queries the ERLC API without starting the gateway.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/keshon/warden/internal/ai"
	"github.com/keshon/warden/internal/config"
	"github.com/keshon/warden/internal/discord"
	"github.com/keshon/warden/internal/docs"
	"github.com/keshon/warden/internal/erlc"
	"github.com/keshon/warden/internal/eventlog"
	"github.com/keshon/warden/internal/logger"
	"github.com/keshon/warden/internal/misc"
	"github.com/keshon/warden/internal/music"
	"github.com/keshon/warden/internal/prc"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/internal/voice"
	"github.com/keshon/warden/internal/welcome"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/urfave/cli/v3"
)

var stdout io.Writer = os.Stdout

var app = cli.Command{
	Name:  "warden-cli",
	Usage: "Administer the warden Discord bot",
	Commands: []*cli.Command{
		{
			Name:  "config",
			Usage: "Inspect stored guild settings",
			Commands: []*cli.Command{
				{
					Name:  "show",
					Usage: "Print the settings of one feature",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:     "feature",
							Usage:    "One of erlc, logging, welcome",
							Required: true,
							Action: func(_ context.Context, _ *cli.Command, s string) error {
								if _, ok := features[s]; !ok {
									return fmt.Errorf("unknown feature %q", s)
								}
								return nil
							},
						},
						&cli.StringFlag{
							Name:  "guild",
							Usage: "Only print this guild",
						},
					},
					Action: cliConfigShow,
				},
			},
		},
		{
			Name:   "commands",
			Usage:  "List the registered commands",
			Action: cliCommands,
		},
		{
			Name:  "docs",
			Usage: "Write the markdown command reference",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "out",
					Usage: "Output file, stdout when empty",
				},
			},
			Action: cliDocs,
		},
		{
			Name:   "publish",
			Usage:  "Overwrite the global slash commands through REST",
			Action: cliPublish,
		},
		{
			Name:  "erlc",
			Usage: "Query the ERLC API",
			Commands: []*cli.Command{
				{
					Name:  "status",
					Usage: "Print the server status for an API key",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:     "key",
							Usage:    "ERLC server key",
							Required: true,
						},
					},
					Action: cliERLCStatus,
				},
			},
		},
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// features maps --feature values to their document and printer.
var features = map[string]func(cfg *config.Config, guildID string) (any, error){
	"erlc": func(cfg *config.Config, guildID string) (any, error) {
		return collect(cfg.DataFile("erlc.json"), storage.Wrapped, guildID, func(s erlc.Settings) erlc.Settings {
			s.APIKey = redact(s.APIKey)
			return s
		})
	},
	"logging": func(cfg *config.Config, guildID string) (any, error) {
		return collect(cfg.DataFile("logging.json"), storage.Wrapped, guildID, func(s eventlog.Settings) eventlog.Settings { return s })
	},
	"welcome": func(cfg *config.Config, guildID string) (any, error) {
		return collect(cfg.DataFile("welcome.json"), storage.Flat, guildID, func(s welcome.Settings) welcome.Settings { return s })
	},
}

var errNoGuild = errors.New("no settings stored for guild")

// collect reads the guild entries of one document. The document is opened
// read-only, so inspecting never creates, rewrites or quarantines files.
func collect[T any](path string, layout storage.Layout, guildID string, clean func(T) T) (any, error) {
	store, err := storage.Open(path, storage.Options[T]{Layout: layout, Logger: logger.Nop(), ReadOnly: true})
	if err != nil {
		return nil, err
	}
	if guildID != "" {
		v, ok := store.Lookup(guildID)
		if !ok {
			return nil, fmt.Errorf("%w %s in %s", errNoGuild, guildID, store.Path())
		}
		return clean(v), nil
	}
	out := make(map[string]T)
	for _, id := range store.GuildIDs() {
		if v, ok := store.Lookup(id); ok {
			out[id] = clean(v)
		}
	}
	return out, nil
}

func redact(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

func cliConfigShow(_ context.Context, c *cli.Command) error {
	cfg, _, err := config.LoadUnchecked()
	if err != nil {
		return err
	}
	show := features[c.String("feature")]
	if show == nil {
		return fmt.Errorf("unknown feature %q", c.String("feature"))
	}
	v, err := show(cfg, c.String("guild"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// catalog registers every command with inert dependencies, enough to read
// names and definitions.
func catalog() (*cmd.Registry, error) {
	reg := cmd.NewRegistry()
	groups := [][]cmd.Module{
		erlc.New(erlc.Options{}).Modules(),
		eventlog.New(eventlog.Options{}).Modules(),
		welcome.New(welcome.Options{}).Modules(),
		misc.New(misc.Options{}).Modules(),
		{docs.Help(reg, "")},
		ai.Modules(nil, nil),
		music.Modules(nil, nil),
		voice.Modules(voice.Options{}),
	}
	for _, g := range groups {
		if err := reg.Load(g...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func cliCommands(context.Context, *cli.Command) error {
	reg, err := catalog()
	if err != nil {
		return err
	}
	return listCommands(stdout, reg)
}

func listCommands(w io.Writer, reg *cmd.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, kind := range []cmd.Kind{cmd.KindSlash, cmd.KindPrefix} {
		for _, c := range reg.Commands(kind) {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", kind, c.Name(), c.Description())
		}
	}
	return tw.Flush()
}

func cliDocs(_ context.Context, c *cli.Command) error {
	cfg, _, err := config.LoadUnchecked()
	if err != nil {
		return err
	}
	reg, err := catalog()
	if err != nil {
		return err
	}
	out := c.String("out")
	if out == "" {
		return docs.Write(stdout, reg, cfg.Prefix)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := docs.Write(f, reg, cfg.Prefix); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cliPublish(context.Context, *cli.Command) error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	reg, err := catalog()
	if err != nil {
		return err
	}
	s, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	me, err := s.User("@me")
	if err != nil {
		return fmt.Errorf("resolve application: %w", err)
	}
	n, err := discord.Publish(s, me.ID, reg)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Fprintf(stdout, "published %d slash commands for %s\n", n, me.Username)
	return nil
}

func cliERLCStatus(ctx context.Context, c *cli.Command) error {
	cfg, _, err := config.LoadUnchecked()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	server, players, err := prc.New(prc.Options{BaseURL: cfg.ERLCAPIURL}).Snapshot(ctx, c.String("key"))
	if err != nil {
		return err
	}
	return printStatus(stdout, server, players)
}

func printStatus(w io.Writer, s *prc.Server, players []prc.Player) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Server\t%s\n", s.Name)
	fmt.Fprintf(tw, "Players\t%s / %s\n", humanize.Comma(int64(s.CurrentPlayers)), humanize.Comma(int64(s.MaxPlayers)))
	fmt.Fprintf(tw, "Join code\t%s\n", s.JoinKey)
	fmt.Fprintf(tw, "Listed\t%d\n", len(players))
	return tw.Flush()
}
