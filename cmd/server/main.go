package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/amq-songs-gateway/content"
	"github.com/jrsteele09/amq-songs-gateway/internal/config"
	"github.com/jrsteele09/amq-songs-gateway/ratelimit"
	"github.com/jrsteele09/amq-songs-gateway/server"
	"github.com/jrsteele09/amq-songs-gateway/upstream/github"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Could not read .env file")
	}
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	store := github.New(github.Options{
		APIURL:   c.GetGitHubAPIURL(),
		OAuthURL: c.GetGitHubOAuthURL(),
		Owner:    c.GetOwner(),
		Repo:     c.GetRepoName(),
		Branch:   c.GetBranch(),
		Path:     c.GetContentPath(),
	})

	var opts []server.Option
	if rdb := connectRedis(c.GetRedisURL()); rdb != nil {
		defer rdb.Close()
		opts = append(opts,
			server.WithEdgeCache(content.NewRedisEdgeCache(rdb)),
			server.WithRateLimitStore(ratelimit.NewRedisStore(rdb)),
		)
	}

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, store, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(srv) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// connectRedis returns a client for url, or nil when url is empty or the
// server cannot be reached. The in-process stores are used without one.
func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid REDIS_URL, using in-memory stores")
		return nil
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opt.Addr).Msg("Redis unreachable, using in-memory stores")
		_ = rdb.Close()
		return nil
	}
	log.Info().Str("addr", opt.Addr).Msg("Connected to Redis")
	return rdb
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
