// Command pushctl pushes stories, comments and notifications into a
// presencehub server, either directly over gRPC or through the AMQP queue.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/storyhub/presencehub/pkg/pushapi"
	"github.com/storyhub/presencehub/pushctl/internal/publisher"
	"github.com/storyhub/presencehub/pushctl/internal/shipper"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pushctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "pushctl",
		Usage: "push events into a presencehub server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "localhost:50051",
				Usage:   "gRPC push service `ADDR`",
				Sources: cli.EnvVars("PRESENCEHUB_SERVER"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key sent with every call",
				Sources: cli.EnvVars("PRESENCEHUB_API_KEY"),
			},
			&cli.StringFlag{Name: "header", Value: "x-api-key", Usage: "metadata key carrying the API key"},
			&cli.StringFlag{Name: "ca-file", Usage: "verify the server against this CA bundle (enables TLS)"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "per-command deadline"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := slog.LevelInfo
			if cmd.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "story",
				Usage: "broadcast a new story to every connected client",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "story", Required: true, Usage: "story `JSON`"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return push(ctx, cmd, pushapi.Event{
						Type:  pushapi.EventNewStory,
						Story: json.RawMessage(cmd.String("story")),
					})
				},
			},
			{
				Name:  "comment",
				Usage: "broadcast a new comment to a story's room",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "comment", Required: true, Usage: "comment `JSON`"},
					&cli.StringFlag{Name: "story", Required: true, Usage: "story `JSON`, must carry an id"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return push(ctx, cmd, pushapi.Event{
						Type:    pushapi.EventNewComment,
						Comment: json.RawMessage(cmd.String("comment")),
						Story:   json.RawMessage(cmd.String("story")),
					})
				},
			},
			{
				Name:  "notify",
				Usage: "send a message to one user's connection",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "user-id", Required: true},
					&cli.StringFlag{Name: "message", Required: true, Usage: "message `JSON`"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return push(ctx, cmd, pushapi.Event{
						Type:    pushapi.EventNotifyUser,
						UserID:  cmd.Int("user-id"),
						Message: json.RawMessage(cmd.String("message")),
					})
				},
			},
			{
				Name:  "stats",
				Usage: "print the hub's connection and room statistics",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
					defer cancel()
					client, closeFn, err := dial(ctx, cmd)
					if err != nil {
						return err
					}
					defer closeFn()
					stats, err := client.Stats(ctx)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.Root().Writer, string(stats))
					return err
				},
			},
			{
				Name:  "ship",
				Usage: "stream newline-delimited event envelopes from stdin over gRPC",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "buffer", Value: 1000, Usage: "in-memory queue depth"},
				},
				Action: ship,
			},
			{
				Name:  "publish",
				Usage: "enqueue newline-delimited event envelopes from stdin on RabbitMQ",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "amqp-url",
						Required: true,
						Sources:  cli.EnvVars("PRESENCEHUB_AMQP_URL"),
					},
					&cli.StringFlag{Name: "queue", Value: publisher.DefaultQueue},
				},
				Action: publish,
			},
		},
	}
}

func shipperConfig(cmd *cli.Command) shipper.Config {
	return shipper.Config{
		Endpoint: cmd.String("server"),
		APIKey:   cmd.String("api-key"),
		Header:   cmd.String("header"),
		CAFile:   cmd.String("ca-file"),
	}
}

func dial(ctx context.Context, cmd *cli.Command) (*pushapi.Client, func(), error) {
	cfg := shipperConfig(cmd)
	conn, err := shipper.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
	}
	return pushapi.NewClient(conn, cfg.Header, cfg.APIKey), func() { conn.Close() }, nil
}

// push applies one event over gRPC and reports the outcome.
func push(ctx context.Context, cmd *cli.Command, ev pushapi.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	client, closeFn, err := dial(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	delivered, err := ev.Apply(ctx, client)
	if err != nil {
		return err
	}
	if ev.Type == pushapi.EventNotifyUser {
		fmt.Fprintf(cmd.Root().Writer, "delivered: %t\n", delivered)
		return nil
	}
	fmt.Fprintln(cmd.Root().Writer, "ok")
	return nil
}

func ship(ctx context.Context, cmd *cli.Command) error {
	cfg := shipperConfig(cmd)
	cfg.BufferSize = int(cmd.Int("buffer"))
	s := shipper.New(cfg)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go s.Run(runCtx)

	n, err := readEvents(os.Stdin, s.Ship)
	if err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	st := s.Stats()
	slog.Info("ship finished", "read", n, "delivered", st.Delivered, "discarded", st.Discarded, "evicted", st.Evicted)
	return nil
}

func publish(ctx context.Context, cmd *cli.Command) error {
	p, err := publisher.Dial(cmd.String("amqp-url"), cmd.String("queue"), slog.Default())
	if err != nil {
		return err
	}
	defer p.Close()

	n, err := readEvents(os.Stdin, func(ev pushapi.Event) error {
		id, err := p.Publish(ctx, ev)
		if err != nil {
			return err
		}
		slog.Debug("published", "type", ev.Type, "message_id", id)
		return nil
	})
	slog.Info("publish finished", "published", n)
	return err
}
