package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/jdelaire/dirtylaunderer/internal/app"
	"github.com/jdelaire/dirtylaunderer/internal/config"
	"github.com/jdelaire/dirtylaunderer/internal/logging"
	"github.com/jdelaire/dirtylaunderer/internal/proxies"
	"github.com/jdelaire/dirtylaunderer/internal/secrets"
	"github.com/jdelaire/dirtylaunderer/internal/webhookcheck"
)

const usage = `usage: launderctl <command> [args]

commands:
  webhook-check               verify the bot webhook and re-register it if needed
  proxy-sync                  fetch, archive, validate and store the proxy catalog
  validate-proxies FILE       probe every instance in FILE and print the live ones
  secret set NAME             store a secret read from stdin in the system keyring
`

var (
	ok   = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bad  = color.New(color.FgRed, color.Bold).SprintFunc()
)

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintln(os.Stderr, bad("error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "webhook-check":
		return webhookCheck(ctx, stdout)
	case "proxy-sync":
		return proxySync(ctx, stdout)
	case "validate-proxies":
		return validateProxies(ctx, args[1:], stdout)
	case "secret":
		return secret(args[1:], stdin, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, "warn", "text")
	return app.New(ctx, cfg, logger)
}

func webhookCheck(ctx context.Context, stdout io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.WebhookChecker().Run(ctx)
	if err != nil {
		return err
	}
	mark := ok("✔")
	if res.Status != webhookcheck.StatusOK {
		mark = warn("↻")
	}
	fmt.Fprintln(stdout, mark, res.Message)
	return nil
}

func proxySync(ctx context.Context, stdout io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	syncer, err := a.ProxySyncer(ctx)
	if err != nil {
		return err
	}
	res, err := syncer.Run(ctx)
	if err != nil {
		return err
	}
	if res.AllDown {
		fmt.Fprintln(stdout, bad("✘"), proxies.AllDownMessage)
		return nil
	}
	fmt.Fprintln(stdout, ok("✔"), res.Message())
	return nil
}

func validateProxies(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate-proxies", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	out := fs.String("o", "", "write the validated catalog as JSON to this file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: validate-proxies needs exactly one FILE", errUsage)
	}

	services, err := proxies.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	live := proxies.NewValidator(nil, nil).ValidateAll(ctx, services)

	names := make([]string, 0, len(live))
	for name := range live {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		got, total := len(live[name]), len(services[name])
		mark := ok("✔")
		switch {
		case got == 0:
			mark = bad("✘")
		case got < total:
			mark = warn("!")
		}
		fmt.Fprintf(stdout, "%s %-12s %d/%d\n", mark, name, got, total)
	}
	fmt.Fprintf(stdout, "%d of %d instances live\n", proxies.Total(live), proxies.Total(services))

	if *out != "" {
		data, err := json.MarshalIndent(live, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *out, err)
		}
	}
	return nil
}

func secret(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) != 2 || args[0] != "set" {
		return fmt.Errorf("%w: secret set NAME", errUsage)
	}
	name := args[1]

	value, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read secret: %w", err)
	}
	value = strings.TrimRight(value, "\r\n")
	if value == "" {
		return errors.New("empty secret on stdin")
	}

	if err := secrets.New().Set(name, value); err != nil {
		return err
	}
	fmt.Fprintln(stdout, ok("✔"), "stored", name)
	return nil
}
