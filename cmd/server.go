package cmd

import (
	"net"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/events"
)

func newEventServerCmd(a *app) *cobra.Command {
	var redisAddr, wsPort, channel string
	c := &cobra.Command{
		Use:   "[--redis <addr>] [--port <port>] [--channel <name>]",
		Short: "Relay sync events to websocket clients",
		Long: `Starts a WebSocket server at /ws that forwards every sync event published
on the Redis channel (see sync --eventsRedis) to the connected clients.

Runs until interrupted.`,
	}
	f := c.Flags()
	f.StringVar(&redisAddr, "redis", "localhost:6379", "Redis address")
	f.StringVar(&wsPort, "port", "8080", "WebSocket server port")
	f.StringVar(&channel, "channel", events.DefaultChannel, "Redis channel carrying the events")
	withPositionals(c)

	c.RunE = func(c *cobra.Command, _ []string) error {
		ctx := c.Context()
		payloads, err := events.Subscribe(ctx, redisAddr, channel)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return clierr.Wrap(clierr.Configuration, err)
		}
		ln, err := net.Listen("tcp", ":"+wsPort)
		if err != nil {
			return clierr.Wrap(clierr.Configuration, errors.Wrapf(err, "cannot listen on port %s", wsPort))
		}
		a.printer.Print("Relaying", channel, "from", redisAddr, "to ws://"+ln.Addr().String()+"/ws")
		a.logger.WithField("addr", ln.Addr().String()).Info("event server started")
		return events.Serve(ctx, ln, payloads, a.logger)
	}
	return c
}
