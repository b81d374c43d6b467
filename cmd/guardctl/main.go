package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ducminhle1904/capital-guard/cmd/common"
	"github.com/ducminhle1904/capital-guard/pkg/reporting"
)

const usage = `guardctl - operator control for capital guard

Usage:
  guardctl [flags] <command> [args]

Commands:
  status              show the trading breaker state
  recover             recover the breaker and resume trading
  trip [reason]       halt trading manually
  balances            show balances and frozen funds
  version             show version information

Flags:
`

func main() {
	var (
		envFile  = flag.String("env", ".env", "Environment file path")
		addr     = flag.String("addr", "", "Guard base URL (default $GUARD_URL or http://localhost:8080)")
		token    = flag.String("token", "", "Operator token (default $OPERATOR_TOKEN)")
		operator = flag.String("operator", "", "Operator name (default $USER)")
		timeout  = flag.Duration("timeout", 10*time.Second, "Request timeout")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if _, err := common.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", *envFile, err)
	}

	client := NewClient(
		firstNonEmpty(*addr, os.Getenv("GUARD_URL"), "http://localhost:8080"),
		firstNonEmpty(*token, os.Getenv("OPERATOR_TOKEN")),
		firstNonEmpty(*operator, os.Getenv("USER")),
		*timeout,
	)

	if err := execute(client, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func execute(client *Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("no command given")
	}

	console := reporting.NewDefaultConsoleReporter(out)

	switch args[0] {
	case "status":
		status, err := client.Status()
		if err != nil {
			return err
		}
		console.PrintBreaker(status)
	case "recover":
		status, err := client.Recover()
		if err != nil {
			return err
		}
		console.PrintBreaker(status)
	case "trip":
		status, err := client.Trip(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		console.PrintBreaker(status)
	case "balances":
		summary, err := client.Balances()
		if err != nil {
			return err
		}
		console.PrintBalances(summary)
	case "version":
		common.PrintVersion(out, "guardctl")
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
