package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"shodh/internal/cli/command"
	"shodh/internal/cli/config"
	httpclient "shodh/internal/cli/http"
	"shodh/internal/cli/repl"
	"shodh/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	pushURL := flag.String("push", "", "Override websocket push URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	userID := flag.Int64("user", 0, "Override current user id")
	statePath := flag.String("state", "", "Override session state path")
	noPush := flag.Bool("no-push", false, "Watch submissions by polling only")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	derivedPush := *pushURL == "" && cfg.PushURL == config.PushURLFor(cfg.BaseURL)
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *noPush {
		cfg.DisablePush = true
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}
	// A derived push URL follows the base URL, including `set base` at runtime.
	sessionPushURL := *pushURL
	if sessionPushURL == "" && !derivedPush {
		sessionPushURL = cfg.PushURL
	}

	sessionState, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		return
	}
	if *userID > 0 {
		sessionState.UserID = *userID
	}

	reader, err := repl.NewReadline(cfg.HistoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	defer func() {
		_ = reader.Close()
	}()

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() int64 {
		return sessionState.UserID
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	session := repl.New(reader, repl.Options{
		Client:       client,
		Commands:     command.Registry(),
		State:        &sessionState,
		StatePath:    cfg.StatePath,
		PrettyJSON:   cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		PollInterval: cfg.PollInterval,
		PushURL:      sessionPushURL,
		DisablePush:  cfg.DisablePush,
		Out:          os.Stdout,
	})
	if err := session.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}
