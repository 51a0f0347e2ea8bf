// Package main is a headless passive display: it follows one event and prints the
// current cue, its countdown and the next cue's start time once per second.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/client"
	"github.com/bbernstein/runofshow-go/internal/logging"
	"github.com/bbernstein/runofshow-go/internal/protocol"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "viewer",
		Usage: "follow one event's timers from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "ws://localhost:4000/ws", Usage: "server WebSocket URL", Sources: cli.EnvVars("VIEWER_SERVER")},
			&cli.StringFlag{Name: "event", Usage: "event ID to follow", Required: true, Sources: cli.EnvVars("VIEWER_EVENT_ID")},
			&cli.StringFlag{Name: "user", Usage: "user ID announced for presence", Sources: cli.EnvVars("VIEWER_USER_ID")},
			&cli.StringFlag{Name: "name", Value: "Terminal viewer", Usage: "display name announced for presence"},
			&cli.DurationFlag{Name: "resync", Value: 20 * time.Second, Usage: "passive schedule resync interval", Sources: cli.EnvVars("PASSIVE_RESYNC_INTERVAL")},
			&cli.StringFlag{Name: "log-level", Value: "warn", Sources: cli.EnvVars("LOG_LEVEL")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := logging.Setup(cmd.String("log-level"), "console"); err != nil {
				return err
			}

			cfg := client.DefaultConfig(cmd.String("server"), cmd.String("event"))
			cfg.Passive = true
			cfg.PassiveResyncInterval = cmd.Duration("resync")
			if user := cmd.String("user"); user != "" {
				cfg.Viewer = &protocol.Viewer{UserID: user, UserName: cmd.String("name"), UserRole: "VIEWER"}
			}
			return run(ctx, client.New(cfg, nil), clock.Real(), out)
		},
	}
}

// run prints one status line per second until ctx is done or the client stops.
func run(ctx context.Context, c *client.Client, clk clock.Clock, out io.Writer) error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	ticker := clk.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			if errors.Is(err, client.ErrForceDisconnected) {
				log.Warn().Err(err).Msg("viewer stopped")
			}
			return err
		case <-ticker.Chan():
			fmt.Fprintln(out, statusLine(c.State()))
		}
	}
}

// statusLine renders the current cue, its countdown and the next cue's display time.
func statusLine(s *client.State) string {
	if !s.Synced() {
		return "waiting for server..."
	}
	active := s.ActiveTimer()
	if active.ItemID == nil || active.State == protocol.StateNone {
		return "no cue loaded"
	}

	label := active.CueLabel
	if label == "" {
		label = fmt.Sprintf("cue %d", *active.ItemID)
	}
	line := fmt.Sprintf("%-24s %-8s %s", label, active.State, formatCountdown(s.RemainingSeconds()))

	p := s.Projection()
	if next, ok := p.Next(*active.ItemID); ok {
		nextLabel := next.Label
		if nextLabel == "" {
			nextLabel = fmt.Sprintf("cue %d", next.ID)
		}
		if at := p.DisplayTime(next.ID); at != "" {
			line += fmt.Sprintf("  next: %s at %s", nextLabel, at)
		} else {
			line += fmt.Sprintf("  next: %s", nextLabel)
		}
	}
	return line
}

// formatCountdown renders seconds as [-]H:MM:SS or [-]MM:SS.
func formatCountdown(seconds int) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	h, m, sec := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, sec)
	}
	return fmt.Sprintf("%s%02d:%02d", sign, m, sec)
}
