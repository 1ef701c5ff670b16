package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mossy-p/peerconnect/config"
	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/media"
	"github.com/mossy-p/peerconnect/internal/peer"
	"github.com/mossy-p/peerconnect/internal/session"
	"github.com/mossy-p/peerconnect/internal/signaling"
)

var signalingURL string

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and start a call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(args[0], cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	joinCmd.Flags().StringVar(&signalingURL, "url", "", "signaling server URL (overrides SIGNALING_URL)")
}

func runJoin(roomID string, in io.Reader, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if signalingURL != "" {
		cfg.SignalingURL = signalingURL
	}

	logger := logging.NewText(os.Stderr, cfg.LogLevel)

	peers, err := peer.NewFactory(cfg.STUNServers, logger)
	if err != nil {
		return err
	}

	dialer := &signaling.Dialer{URL: cfg.SignalingURL, Logger: logger}
	p := newPrinter(out)

	// Closed when the relay connection goes away. JoinRoom dials on this
	// goroutine, so it is set once JoinRoom returns.
	var relayDone <-chan struct{}

	o := session.New(session.Options{
		Media: &media.Source{Logger: logger},
		Peers: peers,
		Dialer: session.DialerFunc(func(ctx context.Context) (session.Transport, error) {
			c, err := dialer.Dial(ctx)
			if err != nil {
				return nil, err
			}
			relayDone = c.Done()
			return c, nil
		}),
		OfferDelay: cfg.OfferDelay,
		Logger:     logger,
		OnChange:   p.onChange,
	})
	defer o.Close()

	joinCtx, joinCancel := context.WithTimeout(ctx, cfg.DialTimeout)
	err = o.JoinRoom(joinCtx, roomID)
	joinCancel()
	if err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	fmt.Fprintf(out, "Joined room %s. Type a message or /help.\n", roomID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return commandLoop(ctx, o, lines, relayDone, out, logger)
}

// commandLoop feeds stdin lines to the orchestrator until the user quits,
// stdin ends or ctx is cancelled.
func commandLoop(ctx context.Context, o *session.Orchestrator, lines <-chan string, relayDone <-chan struct{}, out io.Writer, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return leave(o, logger)

		case <-relayDone:
			fmt.Fprintln(out, "Lost connection to the signaling server. The call may continue; /leave to exit.")
			relayDone = nil

		case line, ok := <-lines:
			if !ok {
				return leave(o, logger)
			}
			quit, err := handleLine(o, line, out)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func leave(o *session.Orchestrator, logger *slog.Logger) error {
	if err := o.LeaveRoom(); err != nil && !errors.Is(err, session.ErrNotInRoom) {
		logger.Warn("leave room", slog.Any(logging.Error, err))
	}
	return nil
}
