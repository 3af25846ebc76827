package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parley/chat-server/internal/channel"
	"github.com/parley/chat-server/internal/command"
	"github.com/parley/chat-server/internal/httpapi"
	"github.com/parley/chat-server/internal/logstore"
	"github.com/parley/chat-server/internal/messaging"
	"github.com/parley/chat-server/internal/ratelimit"
	"github.com/parley/chat-server/internal/session"
)

func main() {
	httpConfig := httpapi.DefaultConfig()
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		httpConfig.ListenAddr = addr
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			httpConfig.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			httpConfig.WriteTimeout = d
		}
	}

	channelConfig := channel.DefaultConfig()
	if v := os.Getenv("WAITER_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			channelConfig.WaiterTTL = d
		}
	}

	sessionConfig := session.DefaultConfig()
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			sessionConfig.IdleTimeout = d
		}
	}

	defaultChannel := channel.DefaultChannelName
	if v := os.Getenv("DEFAULT_CHANNEL"); v != "" {
		defaultChannel = v
	}

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	chatDB := 7
	if v := os.Getenv("CHAT_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			chatDB = n
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, DB: chatDB})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- Core wiring ---
	store := logstore.NewRedisLog(rdb)
	channels := channel.NewRegistry(store, natsClient, defaultChannel, channelConfig)
	sessions := session.NewRegistry(channels, sessionConfig)
	sessions.Start()

	limiter := ratelimit.NewLimiter(rdb)
	commands := command.NewDispatcher(sessions, defaultChannel)
	server := httpapi.NewServer(httpConfig, sessions, channels, commands, limiter)

	log.Printf("Parley chat server starting")
	log.Printf("  listen_addr:      %s", httpConfig.ListenAddr)
	log.Printf("  redis_addr:       %s (db %d)", redisAddr, chatDB)
	log.Printf("  nats_url:         %s", natsConfig.URL)
	log.Printf("  default_channel:  %s", defaultChannel)
	log.Printf("  waiter_ttl:       %s", channelConfig.WaiterTTL)
	log.Printf("  session_timeout:  %s", sessionConfig.IdleTimeout)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}

		sessions.Stop()
		channels.Close()
		natsClient.Close()
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
