// Command partyquiz is a line-oriented game client. It talks to cmd/api, or keeps
// the room in memory for hot-seat play on one machine.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/client"
	"github.com/gokatarajesh/wager-quiz/internal/config"
	"github.com/gokatarajesh/wager-quiz/internal/device"
	"github.com/gokatarajesh/wager-quiz/internal/logging"
	"github.com/gokatarajesh/wager-quiz/internal/match"
	"github.com/gokatarajesh/wager-quiz/internal/question"
	"github.com/gokatarajesh/wager-quiz/internal/question/ai"
	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
	"github.com/gokatarajesh/wager-quiz/internal/roomsync"
)

const tickInterval = 250 * time.Millisecond

func main() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load("configs/.env")
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.NewTo(os.Stderr, "partyquiz", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := newSession(cfg, logger)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	defer session.Close()

	if room, err := session.Resume(ctx); err != nil {
		if !errors.Is(err, client.ErrNotInRoom) {
			logger.Warn().Err(err).Msg("could not resume last room")
		}
	} else if room != nil {
		fmt.Printf("rejoined room %s\n", room.RoomCode)
	}

	go printEvents(ctx, session)
	go tick(ctx, session)

	r := &repl{session: session, out: os.Stdout, timeout: cfg.HTTPTimeout + cfg.Provider.HTTPTimeout}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("partyquiz ready, type help for commands")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := r.exec(ctx, line); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
	}
}

func newSession(cfg *config.Client, logger zerolog.Logger) (*client.Session, error) {
	var store roomstore.Store
	switch cfg.StoreMode {
	case config.StoreMemory:
		store = roomstore.NewMemoryStore()
	default:
		store = roomstore.NewRemoteStore(roomstore.RemoteConfig{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.HTTPTimeout,
		}, logger)
	}

	return client.NewSession(client.Deps{
		Store:     store,
		Profiles:  device.NewStore(cfg.ProfilePath),
		Questions: questionSource(cfg, logger),
	}, client.Config{
		Platform:     roomsync.Platform(cfg.Platform),
		Debounce:     cfg.Debounce,
		PollInterval: cfg.PollInterval,
	}, logger)
}

// questionSource calls the provider directly, or lets cmd/api make the call when the
// device cannot reach it.
func questionSource(cfg *config.Client, logger zerolog.Logger) match.QuestionSource {
	if cfg.QuestionsVia == config.QuestionsService {
		return question.NewRemoteSource(cfg.APIBaseURL, cfg.HTTPTimeout+cfg.Provider.HTTPTimeout, logger)
	}
	generator := ai.NewGenerator(ai.Config{
		BaseURL:        cfg.Provider.BaseURL,
		Model:          cfg.Provider.Model,
		Timeout:        cfg.Provider.HTTPTimeout,
		MaxAttempts:    cfg.Provider.MaxAttempts,
		InitialBackoff: cfg.Provider.InitialBackoff,
		MaxBackoff:     cfg.Provider.MaxBackoff,
	}, logger)
	return question.NewService(generator, nil, logger)
}

func printEvents(ctx context.Context, session *client.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case client.EventNavigate:
				fmt.Printf("-> %s\n", session.Stage())
			case client.EventStatus:
				if ev.Err != nil {
					fmt.Printf("connection %s: %v\n", ev.Status, ev.Err)
				}
			}
		}
	}
}

func tick(ctx context.Context, session *client.Session) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if session.Tick() {
				fmt.Println("time is up")
			}
		}
	}
}
