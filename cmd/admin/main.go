// Package main provides account management utilities for Dropp.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dropp/internal/auth"
	"dropp/internal/config"
	"dropp/internal/notifications"
	"dropp/internal/server"

	"github.com/docopt/docopt-go"
)

const adminVersion = "0.1.0"

const usage = `Dropp account administration.

Usage:
    admin create-user <username> --password=<password> [--display_name=<name>]
    admin token <username> --password=<password>
    admin delete-user <username>
    admin watch <username>
    admin -h | --help
    admin --version

Options:
    -h --help                Show this screen.
    --version                Show version.
    --password=<password>    Account password.
    --display_name=<name>    Display name, defaults to empty.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], adminVersion)
	if err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := server.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = deps.Close() }()
	svc := server.NewServices(cfg, deps)

	username, _ := opts.String("<username>")

	if v, _ := opts.Bool("create-user"); v {
		password, _ := opts.String("--password")
		displayName, _ := opts.String("--display_name")
		user, err := svc.Accounts.CreateUser(ctx, username, displayName, password)
		if err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		fmt.Printf("Created %s (%s)\n", user.Username, user.DisplayName)
	} else if v, _ := opts.Bool("token"); v {
		password, _ := opts.String("--password")
		user, err := svc.Accounts.Authenticate(ctx, username, password)
		if err != nil {
			log.Fatalf("Authentication failed: %v", err)
		}
		token, err := auth.NewTokenService(cfg.JWTSecret, 0).Issue(user.Username)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
	} else if v, _ := opts.Bool("delete-user"); v {
		if err := svc.Accounts.DeleteAccount(ctx, username); err != nil {
			log.Fatalf("Failed to delete user: %v", err)
		}
		fmt.Printf("Deleted %s\n", username)
	} else if v, _ := opts.Bool("watch"); v {
		if deps.Redis == nil {
			log.Fatal("watch needs REDIS_URL")
		}
		watch(ctx, notifications.NewNotifier(deps.Redis), username)
	}
}

func watch(ctx context.Context, n *notifications.Notifier, username string) {
	enc := json.NewEncoder(os.Stdout)
	err := n.Subscribe(ctx, username, func(ev notifications.Event) {
		_ = enc.Encode(ev)
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s, press Ctrl+C to stop\n", notifications.UserChannel(username))
	<-ctx.Done()
}
