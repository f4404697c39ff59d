package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/iudanet/keywitness/internal/client/api"
	"github.com/iudanet/keywitness/internal/client/cli"
	"github.com/iudanet/keywitness/internal/client/iocli"
	"github.com/iudanet/keywitness/internal/client/keystore"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := pflag.Bool("version", false, "Show version information")
	serverURL := pflag.String("server", "http://localhost:8080", "Server URL")
	dbPath := pflag.String("db", "keywitness-client.db", "Path to local keystore")

	pflag.Parse()

	stdio := iocli.NewStdio()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		os.Exit(1)
	}

	store, err := keystore.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open keystore: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close keystore: %v\n", err)
		}
	}()

	c := cli.New(stdio, api.NewClient(*serverURL), store, *serverURL)

	if err := c.Run(context.Background(), args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("Keywitness Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
