// Gray Logic Node - scheduling and rule engine for one home-automation node.
//
// A node owns a declarative document of devices, sensors and their daily
// schedules. It compiles the document into an instance graph, fires rule
// transitions on a software timer, and exposes commands over HTTP and
// events over WebSocket and MQTT.
//
// Exit status 75 asks the service manager for a restart: a boot step
// exhausted its retries, or a reboot was requested over the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-node/migrations"

	"github.com/nerrad567/gray-logic-node/internal/api"
	"github.com/nerrad567/gray-logic-node/internal/automation"
	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/gpio"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/instance"
	"github.com/nerrad567/gray-logic-node/internal/location"
	"github.com/nerrad567/gray-logic-node/internal/process"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
	"github.com/nerrad567/gray-logic-node/internal/timer"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// historyRetention bounds the rule history kept in SQLite.
	historyRetention = 90 * 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	cancel()

	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(process.ExitCode(err))
}

// options are the command-line flags.
type options struct {
	configPath  string
	showVersion bool
}

// parseFlags parses args. The config path defaults to GRAYLOGIC_CONFIG,
// then configs/config.yaml.
func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("graylogic-node", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the node lifecycle, separated from main for testability.
//
// It returns nil when ctx is cancelled, and an error wrapping
// process.ErrRebootRequired when a restart is needed.
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // linear boot sequence
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("graylogic-node %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting Gray Logic Node",
		"version", version,
		"commit", commit,
		"node", cfg.Node.ID,
		"config", opts.configPath,
	)

	notifier := process.NewNotifier(log)
	reboot := process.NewRebootRequest()
	policy := process.RetryPolicy{
		Attempts: cfg.Boot.RetryAttempts,
		Delay:    cfg.Boot.RetryDelay,
		Logger:   log,
	}

	var site location.Site
	err = process.Retry(ctx, "site", policy, func(context.Context) error {
		var siteErr error
		site, siteErr = location.NewSite(cfg.Site)
		return siteErr
	})
	if err != nil {
		return err
	}

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	store := automation.NewSQLiteDocumentStore(db.DB)
	history := automation.NewSQLiteRuleHistoryRepository(db.DB)
	if n, pruneErr := history.PruneHistory(ctx, historyRetention); pruneErr != nil {
		log.Warn("pruning rule history failed", "error", pruneErr)
	} else if n > 0 {
		log.Info("rule history pruned", "removed", n)
	}

	// Load the node document, seeding it from the config file on first boot.
	var doc *automation.Document
	err = process.Retry(ctx, "node document", policy, func(ctx context.Context) error {
		var loadErr error
		doc, loadErr = automation.LoadOrSeed(ctx, store, cfg.Node.ID, func() (*automation.Document, error) {
			if cfg.Node.ConfigFile == "" {
				return automation.NewDocument(), nil
			}
			log.Info("seeding node document", "path", cfg.Node.ConfigFile)
			return automation.LoadDocumentFile(cfg.Node.ConfigFile)
		})
		return loadErr
	})
	if err != nil {
		return err
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		err = process.Retry(ctx, "mqtt", policy, func(context.Context) error {
			var connErr error
			mqttClient, connErr = mqtt.Connect(cfg.MQTT, cfg.Node.ID)
			return connErr
		})
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		err = process.Retry(ctx, "influxdb", policy, func(ctx context.Context) error {
			var connErr error
			influxClient, connErr = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Node.ID)
			return connErr
		})
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the GPIO chip (optional)
	var chip gpio.Chip
	if cfg.GPIO.Enabled {
		realChip, openErr := gpio.Open(cfg.GPIO.Chip)
		if openErr != nil {
			return fmt.Errorf("opening GPIO chip %s: %w", cfg.GPIO.Chip, openErr)
		}
		chip = realChip
		defer func() {
			if closeErr := chip.Close(); closeErr != nil {
				log.Error("error closing GPIO chip", "error", closeErr)
			}
		}()
		log.Info("GPIO chip opened", "chip", cfg.GPIO.Chip)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	registry := newRegistry(mqttClient, influxClient, chip)

	// The command lock serialises API commands with scheduler callbacks.
	var mu sync.Mutex
	sched := timer.New(timer.Real(), timer.Options{
		IdleSleep:      cfg.Scheduler.IdleSleep,
		PauseThreshold: cfg.Scheduler.PauseThreshold,
		YieldInterval:  cfg.Scheduler.YieldInterval,
		Locker:         &mu,
	})
	sched.SetLogger(log.Component("timer"))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	hub := api.NewHub(cfg.WebSocket, log)
	observers := instance.Observers{hub, automation.NewHistoryObserver(history, log)}
	var statePub *automation.StatePublisher
	if mqttClient != nil {
		statePub = automation.NewStatePublisher(mqttClient, cfg.Node.ID, byte(cfg.MQTT.QoS), log) //nolint:gosec // qos validated 0-2
		observers = append(observers, statePub)
	}
	if influxClient != nil {
		observers = append(observers, automation.NewTelemetryObserver(influxClient))
	}

	engine, err := automation.NewEngine(doc, automation.Options{
		Registry:   registry,
		Scheduler:  sched,
		Observer:   observers,
		Logger:     log.Component("automation"),
		Location:   site.Location,
		Sun:        site,
		Store:      store,
		DocumentID: cfg.Node.ID,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	if statePub != nil {
		statePub.SetFinder(engine)
		go statePub.Run(runCtx)
	}

	mu.Lock()
	engine.Start(runCtx)
	mu.Unlock()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if stopErr := engine.Stop(); stopErr != nil {
			log.Error("error stopping engine", "error", stopErr)
		}
	}()

	go func() {
		if runErr := sched.Run(runCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("scheduler stopped", "error", runErr)
		}
	}()

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Engine:  engine,
		Lock:    &mu,
		Timers:  sched,
		History: history,
		Reboot:  reboot,
		Hub:     hub,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(runCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Node.WatchConfig && cfg.Node.ConfigFile != "" {
		go watchDocument(runCtx, cfg.Node.ConfigFile, engine, &mu, log)
	}

	notifier.Ready()
	go notifier.RunWatchdog(runCtx)
	log.Info("initialisation complete", "next_reload", engine.NextReload())

	var result error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-reboot.Done():
		log.Warn("reboot requested", "reason", reboot.Reason())
		result = fmt.Errorf("%w: %s", process.ErrRebootRequired, reboot.Reason())
	}
	notifier.Stopping()
	return result
}

// newRegistry binds every instance type to the transports that are
// available. A nil transport leaves the types needing it unbuildable.
func newRegistry(mqttClient *mqtt.Client, influxClient *influxdb.Client, chip gpio.Chip) *instance.Registry {
	var (
		devDeps = device.Deps{GPIO: chip}
		senDeps = sensor.Deps{GPIO: chip}
	)
	if mqttClient != nil {
		devDeps.MQTT = mqttClient
		senDeps.MQTT = mqttClient
	}
	if influxClient != nil {
		senDeps.Telemetry = influxClient
	}

	reg := instance.NewRegistry()
	device.Register(reg, devDeps)
	sensor.Register(reg, senDeps)
	return reg
}

// watchDocument replaces the live document whenever the seed file changes.
func watchDocument(ctx context.Context, path string, engine *automation.Engine, mu sync.Locker, log *logging.Logger) {
	err := automation.WatchDocumentFile(ctx, path, func(doc *automation.Document) {
		mu.Lock()
		defer mu.Unlock()
		if err := engine.Replace(ctx, doc); err != nil {
			log.Error("replacing node document", "path", path, "error", err)
			return
		}
		log.Info("node document reloaded", "path", path)
	}, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("document watcher stopped", "path", path, "error", err)
	}
}

// healthCheck verifies the infrastructure connections that are configured.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil when disabled)
//   - influxClient: InfluxDB client to check (nil when disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
