package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/livegame/client"
	"github.com/mcdev12/courtside/go/internal/logging"
)

func main() {
	cfg := client.DefaultConfig()
	flag.StringVar(&cfg.URL, "url", cfg.URL, "gateway websocket url")
	flag.StringVar(&cfg.GameID, "game", "", "game id to join")
	flag.StringVar(&cfg.Token, "token", os.Getenv("LIVEGAME_TOKEN"), "bearer token")
	flag.StringVar(&cfg.UserID, "user", "", "user id, for servers without auth")
	flag.StringVar(&cfg.Role, "role", "", "user role, for servers without auth")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logging.Setup(*logLevel, "console")

	if cfg.GameID == "" {
		fmt.Fprintln(os.Stderr, "usage: scoreboard -game <id> [-url ws://host:port/ws] [-token t]")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.New(cfg)
	if err := connect(ctx, c); err != nil {
		log.Fatal().Err(err).Msg("could not join game")
	}
	printDisplay(c.Display(), c.ViewerCount())

	go watch(ctx, c)
	go readCommands(ctx, c, cancel)

	<-ctx.Done()

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer leaveCancel()
	if err := c.Leave(leaveCtx); err != nil && !errors.Is(err, client.ErrNotJoined) {
		log.Warn().Err(err).Msg("leave failed")
	}
	c.Close()
}

// connect joins with backoff. Refused joins are not retried.
func connect(ctx context.Context, c *client.Client) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute

	op := func() error {
		err := c.Connect(ctx)
		var refused *client.JoinError
		if errors.As(err, &refused) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		fmt.Printf("connect failed (%v), retrying in %s\n", err, wait.Round(time.Millisecond))
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

func watch(ctx context.Context, c *client.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-c.Updates():
			switch u.Kind {
			case client.UpdateRejected:
				fmt.Printf("rejected (%s): %s\n", u.Rejection.Code, u.Rejection.Message)
				printDisplay(u.Display, u.ViewerCount)
			case client.UpdatePresence:
				fmt.Printf("viewers: %d\n", u.ViewerCount)
			case client.UpdateForcedLeave, client.UpdateDisconnected:
				fmt.Printf("left session (%s), reconnecting\n", u.Reason)
				if err := connect(ctx, c); err != nil {
					fmt.Printf("reconnect failed: %v\n", err)
					return
				}
				printDisplay(c.Display(), c.ViewerCount())
			default:
				printDisplay(u.Display, c.ViewerCount())
			}
		}
	}
}

func readCommands(ctx context.Context, c *client.Client, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			quit()
			return
		}

		m, err := client.ParseCommand(line)
		if err != nil {
			fmt.Println(err)
			fmt.Println("commands: home +2 | away -1 | home 3 <playerID> | end | quit")
			continue
		}
		if _, err := c.Submit(m); err != nil {
			fmt.Printf("submit failed: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
	quit()
}

func printDisplay(d client.Display, viewers int) {
	pending := ""
	if d.Pending > 0 {
		pending = fmt.Sprintf("  (%d pending)", d.Pending)
	}
	fmt.Printf("[%s] home %d - %d away  %s  rev %d  viewers %d%s\n",
		d.GameID, d.HomeScore, d.AwayScore, d.Status, d.Revision, viewers, pending)
}
