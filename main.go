package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-hub/internal/cache"
	"github.com/any-hub/any-hub/internal/config"
	"github.com/any-hub/any-hub/internal/converge"
	"github.com/any-hub/any-hub/internal/fetch"
	"github.com/any-hub/any-hub/internal/logging"
	"github.com/any-hub/any-hub/internal/proxy"
	"github.com/any-hub/any-hub/internal/server"
	"github.com/any-hub/any-hub/internal/upstream"
	"github.com/any-hub/any-hub/internal/version"
)

// cliOptions gathers the parsed CLI flags, kept as a struct so run can be
// exercised by tests without touching os.Args.
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run executes the resolved CLI options and returns a process exit code.
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "load config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "init logger: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["registries"] = len(cfg.Registries)
		fields["upstreams"] = len(cfg.Upstreams)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("config validated")
		return 0
	}

	// Startup order: config → disk cache → upstream client → fetch engine →
	// convergence loop → Fiber server. Construct each dependency once and
	// hand it to every long-lived consumer; the front door and the
	// convergence loop share one Engine value.
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "init cache dir: %v\n", err)
		return 1
	}

	servers := toServers(cfg.Upstreams)
	client := upstream.NewClient(cfg.Global.UpstreamTimeout.DurationValue())
	engine := fetch.New(store, client, logger, cfg.Global.ShardCount, servers)

	convergeLoop := converge.New(
		engine, client, store, logger, servers, cfg.Registries,
		cfg.Global.ConvergeInterval.DurationValue(), cfg.Global.ProbeConcurrency,
	)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["registries"] = len(cfg.Registries)
	fields["upstreams"] = len(cfg.Upstreams)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("config loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go convergeLoop.Run(ctx)

	if err := startHTTPServer(ctx, cfg, engine, store, convergeLoop, logger); err != nil {
		fmt.Fprintf(stdErr, "http server: %v\n", err)
		return 1
	}
	return 0
}

func toServers(baseURLs []string) []upstream.Server {
	servers := make([]upstream.Server, len(baseURLs))
	for i, u := range baseURLs {
		servers[i] = upstream.Server{BaseURL: u}
	}
	return servers
}

// parseCLIFlags parses CLI arguments and resolves the config path against
// the ANY_HUB_CONFIG environment variable.
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("any-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "config file path (default ./config.toml, overridable via ANY_HUB_CONFIG)")
	fs.BoolVar(&checkOnly, "check-config", false, "validate config then exit")
	fs.BoolVar(&showVer, "version", false, "print version information")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("parse flags: %w", err)
	}

	path := os.Getenv("ANY_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// statusReporter adapts the fetch engine and convergence loop to the admin
// /-/status endpoint.
type statusReporter struct {
	engine       *fetch.Engine
	convergeLoop *converge.Loop
	version      string
}

func (s statusReporter) Status() fiber.Map {
	return fiber.Map{
		"version":    s.version,
		"registries": s.convergeLoop.Snapshot(),
		"last_tick":  s.convergeLoop.LastTick(),
		"engine":     s.engine.Stats(),
	}
}

// levelSetter adapts logging's runtime level to the admin /-/loglevel
// endpoint, both reading and writing the logger's current level.
type levelSetter struct {
	logger *logrus.Logger
}

func (l levelSetter) Level() string {
	return l.logger.GetLevel().String()
}

func (l levelSetter) SetLevel(level string) error {
	return logging.SetLevel(l.logger, level)
}

func startHTTPServer(ctx context.Context, cfg *config.Config, engine *fetch.Engine, store cache.Store, convergeLoop *converge.Loop, logger *logrus.Logger) error {
	handler := proxy.NewHandler(store, engine, logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:        logger,
		Proxy:         handler,
		Status:        statusReporter{engine: engine, convergeLoop: convergeLoop, version: version.Full()},
		Level:         levelSetter{logger: logger},
		ListenPort:    cfg.Global.ListenPort,
		AdminUsername: cfg.Global.AdminUsername,
		AdminPassword: cfg.Global.AdminPassword,
	})
	if err != nil {
		return err
	}

	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{"action": "listen", "port": port}).Info("fiber server starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("shutting down")
		return app.Shutdown()
	}
}
