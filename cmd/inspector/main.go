package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/GoPolymarket/polyclob/internal/auth"
	"github.com/GoPolymarket/polyclob/internal/config"
	"github.com/GoPolymarket/polyclob/internal/pkg/logger"
	"github.com/GoPolymarket/polyclob/internal/stream"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
)

var (
	channel = flag.String("channel", "market", "stream channel (market or user)")
	topics  = flag.String("topics", "", "comma separated asset ids (market) or condition ids (user)")
	baseURL = flag.String("url", stream.DefaultBaseURL, "stream base URL")
	types   = flag.String("types", "", "comma separated event types to print, empty prints all")
	verbose = flag.Bool("verbose", false, "log connection state changes")
)

// line is one printed event.
type line struct {
	ReceivedAt time.Time        `json:"received_at"`
	EventType  stream.EventType `json:"event_type"`
	Event      stream.Event     `json:"event"`
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger.InitWithOptions(logger.Options{Level: level})

	sub := stream.Subscription{Channel: stream.Channel(*channel), Topics: splitList(*topics)}
	if sub.Channel == stream.UserChannel {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		c := cfg.Credentials()
		if c == nil {
			log.Fatalf("user channel needs POLYCLOB_CLOB_API_KEY, POLYCLOB_CLOB_API_SECRET and POLYCLOB_CLOB_API_PASSPHRASE")
		}
		sub.Auth = &auth.Credentials{Key: c.Key, Secret: c.Secret, Passphrase: c.Passphrase}
	}

	wanted := make(map[stream.EventType]struct{})
	for _, t := range splitList(*types) {
		wanted[stream.EventType(t)] = struct{}{}
	}

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	var mu sync.Mutex
	printer := stream.ListenerFunc(func(ev stream.Event) error {
		if len(wanted) > 0 {
			if _, ok := wanted[ev.Type()]; !ok {
				return nil
			}
		}
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(line{ReceivedAt: time.Now().UTC(), EventType: ev.Type(), Event: ev})
	})

	client, err := stream.New(stream.DefaultConfig(*baseURL), sub, stream.WithListener(printer))
	if err != nil {
		log.Fatalf("Failed to create stream client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil {
		log.Fatalf("Failed to start stream: %v", err)
	}
	fmt.Fprintf(os.Stderr, "tailing %s at %s\n", sub.Channel, client.URL())

	// Exit once reconnects are exhausted.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = client.Close()
			return
		case <-ticker.C:
			if client.Exhausted() {
				log.Fatalf("stream gave up: %v", client.Err())
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
