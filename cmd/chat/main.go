// on-message chat - terminal client for a single room.
//
// Connects straight to the configured entity store, opens a live view of
// the room and sends stdin lines as messages:
//
//	chat <roomKey> <myAddress> <peerAddress>
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nv-cho/on-message/internal/arkiv"
	"github.com/nv-cho/on-message/internal/chat"
	"github.com/nv-cho/on-message/internal/config"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: chat <roomKey> <myAddress> <peerAddress>")
		os.Exit(1)
	}
	roomKey, me, peer := os.Args[1], os.Args[2], os.Args[3]

	cfg := config.Load()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "store:", err)
		os.Exit(1)
	}
	defer store.Close()

	repo := chat.NewRepository(store, logger)

	view := chat.NewRoomView(store, repo, roomKey, me, peer,
		chat.WithPollInterval(cfg.PollInterval),
		chat.WithLogger(logger),
	)
	view.Start(ctx)
	defer view.Close()

	fmt.Printf("room %s as %s (ctrl-d to quit)\n", roomKey, me)

	// Print new messages as the view picks them up.
	go func() {
		printed := make(map[string]bool)
		for {
			for _, m := range view.Messages() {
				if printed[m.ID] {
					continue
				}
				printed[m.ID] = true
				fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.Sender, m.Text)
			}
			time.Sleep(500 * time.Millisecond)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := view.Send(ctx, text, peer); err != nil {
			fmt.Fprintln(os.Stderr, "send failed:", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (arkiv.Client, error) {
	switch cfg.ArkivBackend {
	case "postgres":
		return arkiv.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "sqlite":
		return arkiv.NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return arkiv.NewMemoryStore(), nil
	}
}
