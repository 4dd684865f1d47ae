// ABOUTME: Entry point for the gigasync CLI
// ABOUTME: Routes subcommands and maps the error taxonomy to exit codes
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/harperreed/gigasync/cli"
	"github.com/harperreed/gigasync/phone"
)

const version = "0.2.0"

func main() {
	quiet := flag.Bool("quiet", false, "Suppress progress output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("gigasync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	// Client credentials may live in a local .env during development.
	_ = godotenv.Load()

	cfg := &cli.Config{
		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		Quiet:        *quiet,
	}

	var err error
	switch command := args[0]; command {
	case "google-sync":
		err = cli.GoogleSyncCommand(cfg, args[1:])
	case "delete-contacts":
		err = cli.DeleteContactsCommand(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode translates the error taxonomy at the outermost layer.
func exitCode(err error) int {
	var loginErr *phone.LoginError
	switch {
	case errors.Is(err, phone.ErrSessionRunning):
		return 3
	case errors.As(err, &loginErr):
		return 4
	case errors.Is(err, cli.ErrMissingCredentials):
		return 5
	}
	return 1
}

func printUsage() {
	fmt.Println(`gigasync - sync Google contacts to a Gigaset C470IP base station

Usage:
  gigasync [--quiet] <command> <url> [flags]

Commands:
  google-sync <url> [--pin PIN] [--handset N] [--force-google-auth] [--overwrite]
      Pull contacts from Google and upload them to the phone's address book

  delete-contacts <url> [--pin PIN] [--handset N]
      Clear the on-device address book

Environment:
  CLIENT_ID, CLIENT_SECRET   Google OAuth client credentials (google-sync)

Exit codes:
  0  success, or OAuth authorization still pending
  3  another configuration session is running on the phone
  4  login failed
  5  missing Google client credentials`)
}
