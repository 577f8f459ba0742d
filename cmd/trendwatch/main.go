package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usageText = `Usage:
  trendwatch run      [--mode evening|morning] [--force] [--date YYYY-MM-DD] [--dry-run] [--override CODE=PRICE]
  trendwatch backfill [--days N] [--start YYYY-MM-DD] [--end YYYY-MM-DD] [--format json|parquet] [--no-archive] [--workers N]
  trendwatch serve    [--run-on-start]

Every command accepts --config PATH (default configs/config.yaml, or CONFIG_PATH).
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCmd(ctx, args)
	case "backfill":
		err = backfillCmd(ctx, args)
	case "serve":
		err = serveCmd(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usageText)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "trendwatch %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func configFlag(fs *flag.FlagSet) *string {
	def := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	return fs.String("config", def, "config file path")
}
