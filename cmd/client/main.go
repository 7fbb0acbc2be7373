package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pubsubcore/internal/client"
	"github.com/vovakirdan/pubsubcore/internal/core"
	pslog "github.com/vovakirdan/pubsubcore/internal/log"
	"github.com/vovakirdan/pubsubcore/internal/proto"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type clientFlags struct {
	url      string
	tcpAddr  string
	name     string
	room     string
	logLevel string
}

func newRootCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "pubsub-client",
		Short: "Terminal chat client that stays joined across reconnects",
		Long: `Reads lines from stdin and publishes them to the current room.

Commands:
  /join <room>   join another room and make it current
  /leave <room>  leave a room
  /list [room]   list names in a room
  /quit          exit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags, os.Stdin, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.url, "url", "ws://localhost:8124/ws", "WebSocket endpoint")
	f.StringVar(&flags.tcpAddr, "tcp", "", "connect over raw TCP to this address instead of WebSocket")
	f.StringVar(&flags.name, "name", "cli-user", "display name")
	f.StringVar(&flags.room, "room", "general", "room to join on start")
	f.StringVar(&flags.logLevel, "log-level", "warn", "log level")

	return cmd
}

func run(parent context.Context, flags clientFlags, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var dialer client.Dialer = client.WSDialer{URL: flags.url}
	target := flags.url
	if flags.tcpAddr != "" {
		dialer = client.TCPDialer{Addr: flags.tcpAddr, Timeout: 5 * time.Second}
		target = flags.tcpAddr
	}

	c := client.New(dialer, client.WithLogger(pslog.New(flags.logLevel)))
	attachPrinters(c, out)

	if err := c.Join(ctx, flags.name, flags.room); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	fmt.Fprintf(out, "Connecting to %s as %s in room %s\n", target, flags.name, flags.room)
	fmt.Fprintln(out, "Type messages and press Enter to send. Ctrl+C to exit.")

	readInput(ctx, c, flags, in, out)

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func attachPrinters(c *client.Controller, out io.Writer) {
	c.OnConnect(func() { fmt.Fprintln(out, "* connected") })
	c.OnDisconnect(func(err error) { fmt.Fprintf(out, "* disconnected: %v\n", err) })
	c.OnError(func(m client.Message) { fmt.Fprintf(out, "! %s\n", m.Error) })
	c.OnAnnounce(func(m client.Message) { fmt.Fprintf(out, "* %s %s\n", m.Name, m.Action) })
	c.Handle(core.Exact(proto.ChannelList), func(m client.Message) {
		fmt.Fprintf(out, "* users: %s\n", strings.Join(m.Users, ", "))
	})
	c.Default(func(m client.Message) { fmt.Fprintln(out, formatRoomMessage(m)) })
}

// chatText is the data of a chat message, as the web UI sends it.
type chatText struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func formatRoomMessage(m client.Message) string {
	var chat chatText
	if err := json.Unmarshal(m.Data, &chat); err == nil && chat.Text != "" {
		return fmt.Sprintf("[%s] %s: %s", m.Room, chat.Name, chat.Text)
	}
	return fmt.Sprintf("[%s] %s", m.Room, m.Data)
}

func readInput(ctx context.Context, c *client.Controller, flags clientFlags, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	room := flags.room
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			cmd, arg, _ := strings.Cut(text, " ")
			arg = strings.TrimSpace(arg)
			switch cmd {
			case "/quit":
				return
			case "/join":
				if arg == "" {
					fmt.Fprintln(out, "! usage: /join <room>")
					continue
				}
				room = arg
				err = c.Join(ctx, flags.name, room)
			case "/leave":
				if arg == "" {
					arg = room
				}
				err = c.Leave(ctx, arg)
			case "/list":
				if arg == "" {
					arg = room
				}
				err = c.Send(ctx, proto.ChannelList, proto.ListRequest{Room: arg})
			default:
				err = c.Send(ctx, room, chatText{Name: flags.name, Text: text})
			}
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}
