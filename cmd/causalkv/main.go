package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"causalkv/internal/config"
	"causalkv/internal/metrics"
	"causalkv/internal/model"
	"causalkv/internal/node"
)

const usage = `usage: causalkv <command> [flags]

commands:
  serve   run a replica
  check   explore the replication model for property violations
`

func initLogger(loglevel string) log.Logger {

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "debug":
		logger = level.NewFilter(logger, level.AllowDebug())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// setFlags lists the flags given explicitly on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFlag := fs.String("config", "", "Path to a TOML configuration file.")
	idFlag := fs.Int("id", 0, "Replica id; tags every version this node issues.")
	listenFlag := fs.String("listen", "", "gRPC listen address.")
	httpFlag := fs.String("http", "", "HTTP gateway address; empty disables the gateway.")
	metricsFlag := fs.String("metrics", "", "Prometheus listen address; empty disables metrics.")
	peersFlag := fs.String("peers", "", "Comma-separated peers, e.g. 0=127.0.0.1:50051,1=127.0.0.1:50052.")
	variantFlag := fs.String("variant", "", "Store variant: safe or unsafe.")
	loglevelFlag := fs.String("loglevel", "", "Log level: debug, info, warn or error.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conf, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}

	set := setFlags(fs)
	if set["id"] {
		conf.Node.ID = *idFlag
	}
	if set["listen"] {
		conf.Node.ListenAddr = *listenFlag
	}
	if set["http"] {
		conf.Node.HTTPAddr = *httpFlag
	}
	if set["metrics"] {
		conf.Node.MetricsAddr = *metricsFlag
	}
	if set["variant"] {
		conf.Node.Variant = *variantFlag
	}
	if set["loglevel"] {
		conf.LogLevel = *loglevelFlag
	}
	if set["peers"] {
		peers, err := config.ParsePeers(*peersFlag)
		if err != nil {
			return err
		}
		conf.Peers = peers
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	logger := initLogger(conf.LogLevel)
	for _, p := range conf.Members() {
		level.Info(logger).Log("msg", "cluster member", "id", p.ID, "addr", p.Addr, "self", p.ID == conf.Node.ID)
	}

	var metricsHandler http.Handler
	reg := prom.NewRegistry()
	m := metrics.New(conf.Node.MetricsAddr != "", reg)
	if conf.Node.MetricsAddr != "" {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		go runPromHTTP(logger, conf.Node.MetricsAddr, metricsHandler)
	} else {
		level.Debug(logger).Log("msg", "metrics addr is empty, not exposing prometheus metrics")
	}

	n := node.New(node.Options{
		ID:          conf.Node.ID,
		ListenAddr:  conf.Node.ListenAddr,
		Peers:       conf.PeerAddrs(),
		Variant:     conf.StoreVariant(),
		SyncTimeout: conf.Node.SyncTimeout.Duration,
		RetryMin:    conf.Node.RetryMin.Duration,
		RetryMax:    conf.Node.RetryMax.Duration,
		Logger:      logger,
		Metrics:     m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)
	go func() {
		errc <- n.Start()
	}()

	var gw *http.Server
	if conf.Node.HTTPAddr != "" {
		gw = &http.Server{
			Addr:              conf.Node.HTTPAddr,
			Handler:           node.NewGateway(n, metricsHandler, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			level.Info(logger).Log("msg", "gateway listening", "addr", conf.Node.HTTPAddr)
			if err := gw.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("gateway: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		level.Info(logger).Log("msg", "shutting down")
	case err = <-errc:
	}

	if gw != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(shutdownCtx)
	}
	n.Stop()
	return err
}

func runPromHTTP(logger log.Logger, addr string, handler http.Handler) {

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		level.Warn(logger).Log("msg", "failed to serve prometheus metrics", "err", err)
	}
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configFlag := fs.String("config", "", "Path to a TOML configuration file.")
	servers := fs.Int("servers", 0, "Number of replicas.")
	putClients := fs.Int("put-clients", 0, "Number of put clients.")
	deleteClients := fs.Int("delete-clients", 0, "Number of delete clients.")
	putCount := fs.Int("put-count", 0, "Puts issued by each put client.")
	deleteCount := fs.Int("delete-count", 0, "Deletes issued by each delete client.")
	gets := fs.Bool("gets", false, "Issue a trailing Get after each client's mutations.")
	variant := fs.String("variant", "", "Store variant: safe or unsafe.")
	network := fs.String("network", "", "Network: ordered, unordered or duplicating.")
	lossy := fs.Bool("lossy", false, "Allow the network to drop messages.")
	strategy := fs.String("strategy", "", "Search strategy: bfs, dfs or simulate.")
	maxStates := fs.Int("max-states", 0, "Stop after this many distinct states (0 is unbounded).")
	maxDepth := fs.Int("max-depth", 0, "Do not explore paths longer than this (0 is unbounded).")
	runs := fs.Int("runs", 0, "Random walks for the simulate strategy.")
	seed := fs.Int64("seed", 0, "Seed for the simulate strategy.")
	workers := fs.Int("workers", 0, "Goroutines for the simulate strategy.")
	stopOnViolation := fs.Bool("stop", false, "Stop at the first violation.")
	loglevelFlag := fs.String("loglevel", "", "Log level: debug, info, warn or error.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conf, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}

	set := setFlags(fs)
	c := &conf.Check
	overrideInt(set, "servers", &c.Servers, *servers)
	overrideInt(set, "put-clients", &c.PutClients, *putClients)
	overrideInt(set, "delete-clients", &c.DeleteClients, *deleteClients)
	overrideInt(set, "put-count", &c.PutCount, *putCount)
	overrideInt(set, "delete-count", &c.DeleteCount, *deleteCount)
	overrideInt(set, "max-states", &c.MaxStates, *maxStates)
	overrideInt(set, "max-depth", &c.MaxDepth, *maxDepth)
	overrideInt(set, "runs", &c.Runs, *runs)
	overrideInt(set, "workers", &c.Workers, *workers)
	if set["gets"] {
		c.IntermediateGets = *gets
	}
	if set["variant"] {
		c.Variant = *variant
	}
	if set["network"] {
		c.Network = *network
	}
	if set["lossy"] {
		c.Lossy = *lossy
	}
	if set["strategy"] {
		c.Strategy = *strategy
	}
	if set["seed"] {
		c.Seed = *seed
	}
	if set["loglevel"] {
		conf.LogLevel = *loglevelFlag
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	logger := initLogger(conf.LogLevel)

	mc, err := conf.ModelConfig()
	if err != nil {
		return err
	}
	m, err := model.Build(mc)
	if err != nil {
		return err
	}

	checker := model.NewChecker(m, logger)
	checker.MaxStates = c.MaxStates
	checker.MaxDepth = c.MaxDepth
	checker.StopOnViolation = *stopOnViolation

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *model.Report
	switch c.Strategy {
	case "dfs":
		report, err = checker.CheckDFS(ctx)
	case "simulate":
		depth := c.MaxDepth
		if depth == 0 {
			depth = 100
		}
		report, err = checker.Simulate(ctx, c.Runs, depth, c.Seed, c.Workers)
	default:
		report, err = checker.CheckBFS(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s\nstates=%d max_depth=%d complete=%t duration=%s\n",
		mc, report.States, report.MaxDepth, report.Complete, report.Duration)
	for _, p := range m.Properties() {
		d, ok := report.Discovery(p.Name)
		if !ok {
			fmt.Printf("ok   %s %q\n", p.Expectation, p.Name)
			continue
		}
		fmt.Printf("FAIL %s", d)
	}

	if !report.Ok() {
		return fmt.Errorf("%d of %d properties violated", len(report.Discoveries), len(m.Properties()))
	}
	return nil
}

func overrideInt(set map[string]bool, name string, dst *int, v int) {
	if set[name] {
		*dst = v
	}
}
