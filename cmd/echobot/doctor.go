package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"echobot/internal/config"
)

type checkReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	fmt.Fprintf(r.out, "  [PASS] %-24s %s\n", check, detail)
	r.passed++
}

func (r *checkReport) fail(check, detail string) {
	fmt.Fprintf(r.out, "  [FAIL] %-24s %s\n", check, detail)
	r.failed++
}

func (r *checkReport) warn(check, detail string) {
	fmt.Fprintf(r.out, "  [WARN] %-24s %s\n", check, detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the echobot setup",
		Long: `Verifies that the configuration loads, the bot token is accepted by
Discord, and every redirect destination is a reachable text channel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "echobot doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &checkReport{out: out}
			cfg, source, err := config.Discover(configPath)
			if err != nil {
				r.fail("Configuration", err.Error())
				return r.summary()
			}
			r.pass("Configuration", fmt.Sprintf("%s (%d redirects)", source, len(cfg.Redirects)))

			checkLocal(r, cfg)

			if offline {
				r.warn("Discord", "skipped (--offline)")
			} else {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				checkDiscord(ctx, r, cfg)
			}
			return r.summary()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that contact Discord")
	return cmd
}

func (r *checkReport) summary() error {
	fmt.Fprintf(r.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(r.out, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkLocal(r *checkReport, cfg *config.Config) {
	if cfg.Health.Port > 0 {
		addr := net.JoinHostPort(cfg.Health.Host, fmt.Sprint(cfg.Health.Port))
		if err := checkPort(addr); err != nil {
			r.warn("Health port", fmt.Sprintf("%s may be in use: %v", addr, err))
		} else {
			r.pass("Health port", addr+" available")
		}
	}

	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			r.pass("Log file", cfg.General.LogFile)
		}
	}
}

func checkDiscord(ctx context.Context, r *checkReport, cfg *config.Config) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		r.fail("Bot token", err.Error())
		return
	}

	user, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		r.fail("Bot token", err.Error())
		return
	}
	r.pass("Bot token", "signed in as "+user.Username)

	seen := map[string]bool{}
	for _, rd := range cfg.Redirects {
		for _, id := range rd.Destinations {
			if seen[id] {
				continue
			}
			seen[id] = true
			checkDestination(ctx, r, s, id)
		}
	}
}

func checkDestination(ctx context.Context, r *checkReport, s *discordgo.Session, id string) {
	name := "Destination " + id
	ch, err := s.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil &&
			(rest.Response.StatusCode == http.StatusNotFound || rest.Response.StatusCode == http.StatusForbidden) {
			r.fail(name, "channel was not found or is not visible to the bot")
			return
		}
		r.fail(name, err.Error())
		return
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		r.pass(name, "#"+ch.Name)
	default:
		r.fail(name, fmt.Sprintf("#%s is not a text channel", ch.Name))
	}
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
