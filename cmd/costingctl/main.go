// Command costingctl prints consumption reports and manages the catalog
// cache from a terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/odyssey-erp/odyssey-costing/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-costing/internal/app"
	"github.com/odyssey-erp/odyssey-costing/internal/platform/cache"
	platformdb "github.com/odyssey-erp/odyssey-costing/internal/platform/db"
)

const usage = `usage: costingctl <command> [flags]

commands:
  report      print a consumption report
  invalidate  enqueue a catalog cache invalidation
  queue       print job queue statistics
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitInvalid
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return cli.ExitError
	}
	// Logs go to stderr so stdout stays machine readable.
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	switch args[0] {
	case "report":
		return runReport(ctx, cfg, logger, args[1:], stdout, stderr)
	case "invalidate":
		return runInvalidate(ctx, cfg, args[1:], stdout, stderr)
	case "queue":
		return runQueue(ctx, cfg, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return cli.ExitInvalid
	}
}

func runReport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		opts       cli.ReportOptions
		productIDs string
	)
	fs.Int64Var(&opts.TenantID, "tenant", 0, "tenant id")
	fs.StringVar(&opts.Start, "start", "", "first day, YYYY-MM-DD")
	fs.StringVar(&opts.End, "end", "", "last day, YYYY-MM-DD")
	fs.StringVar(&opts.Query, "q", "", "case-insensitive ingredient name filter")
	fs.StringVar(&productIDs, "product", "", "comma separated sold product ids")
	fs.Int64Var(&opts.CategoryID, "category", 0, "sold product category id")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	fs.BoolVar(&opts.Strict, "strict", false, "exit 10 when the report carries warnings")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalid
	}
	ids, err := parseIDs(productIDs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "report: %v\n", err)
		return cli.ExitInvalid
	}
	opts.ProductIDs = ids
	opts.Stdout, opts.Stderr = stdout, stderr

	pool, err := platformdb.New(ctx, cfg.PGDSN, platformdb.PoolOptions{MaxConns: 4, ApplicationName: "costingctl"})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "report: %v\n", err)
		return cli.ExitError
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reading catalog directly", slog.Any("error", err))
	} else {
		defer func() { _ = redisClient.Close() }()
	}

	service, _ := app.NewCostingService(cfg, pool, redisClient, nil, logger)
	reporter, err := cli.NewConsumptionCLI(service)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "report: %v\n", err)
		return cli.ExitError
	}
	return reporter.ReportCommand(ctx, opts)
}

func runInvalidate(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("invalidate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenantID := fs.Int64("tenant", 0, "tenant id")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalid
	}
	if *tenantID <= 0 {
		_, _ = fmt.Fprintln(stderr, "invalidate: --tenant is required and must be positive")
		return cli.ExitInvalid
	}

	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()
	info, err := jobsCLI.Invalidate(ctx, *tenantID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalidate: %v\n", err)
		return cli.ExitError
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s on %s (task %s)\n", info.Type, info.Queue, info.ID)
	return cli.ExitOK
}

func runQueue(ctx context.Context, cfg *app.Config, stdout, stderr io.Writer) int {
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
		return cli.ExitError
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		return cli.ExitError
	}
	return cli.ExitOK
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid product id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
