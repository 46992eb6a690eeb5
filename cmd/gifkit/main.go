// Package main provides the gifkit command line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
)

const usage = `usage: gifkit <command> [flags]

commands:
  convert   convert a video clip into an animated GIF
  edit      rotate, filter, crop and re-encode an image

run "gifkit <command> --help" for the flags of a command.
Environment variables such as FFMPEG_PATH, SEEK_TIMEOUT and FETCH_PROXY_URL
are read as in the server.
`

// errUsage is returned for a missing or unknown command.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "convert":
		opts, err := parseConvert(rest, stderr)
		if err != nil {
			return err
		}
		return runConvert(ctx, opts, stdout, stderr)
	case "edit":
		opts, err := parseEdit(rest, stderr)
		if err != nil {
			return err
		}
		return runEdit(ctx, opts, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SortFlags = false
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: gifkit %s [flags]\n\n", name)
		flags.PrintDefaults()
	}
	return flags
}
