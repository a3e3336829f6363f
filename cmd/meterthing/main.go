// meterthing exposes a DLMS/COSEM smart meter as a W3C Web Thing.
//
// Readings arrive from a meter decoder, over MQTT or from its stdout, or
// from a recording,
// are normalized and applied to a Thing whose properties are fixed by the
// first reading. The Thing is served over the Web Thing HTTP/WebSocket API,
// mirrored to retained MQTT topics and advertised over mDNS.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/meterthing/internal/api"
	"github.com/nerrad567/meterthing/internal/bridge"
	"github.com/nerrad567/meterthing/internal/catalog"
	"github.com/nerrad567/meterthing/internal/discovery"
	"github.com/nerrad567/meterthing/internal/infrastructure/config"
	"github.com/nerrad567/meterthing/internal/infrastructure/database"
	"github.com/nerrad567/meterthing/internal/infrastructure/logging"
	"github.com/nerrad567/meterthing/internal/infrastructure/mqtt"
	"github.com/nerrad567/meterthing/internal/normalize"
	"github.com/nerrad567/meterthing/internal/obis"
	"github.com/nerrad567/meterthing/internal/process"
	"github.com/nerrad567/meterthing/internal/source"
	"github.com/nerrad567/meterthing/internal/thing"
	"github.com/nerrad567/meterthing/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the components and blocks until the sync loop ends.
//
// Returns:
//   - error: nil on a signal-driven shutdown; otherwise the failure that
//     stopped startup or the sync loop
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting meterthing", "version", version, "commit", commit, "build_date", date)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "thing_id", cfg.Thing.ID, "source", cfg.Source.Type)

	// Property catalogue
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// MQTT
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Source -> normalizer -> loop
	raw, closeSource, err := buildSource(cfg, mqttClient, log)
	if err != nil {
		return err
	}
	defer closeSource() //nolint:errcheck // shutting down

	table, err := normalize.ParseTable(cfg.ConversionMap())
	if err != nil {
		return fmt.Errorf("parsing conversions: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := bridge.NewMetrics(registry)

	loop := bridge.NewLoop(bridge.Options{
		Source: normalize.NewAdapter(raw, normalize.New(table)),
		Description: thing.Description{
			ID:          cfg.Thing.ID,
			Title:       cfg.Thing.Title,
			Types:       cfg.Thing.Types,
			Description: cfg.Thing.Description,
		},
		Metrics: metrics,
		Logger:  log.Component("bridge"),
	})

	log.Info("waiting for first reading")
	th, err := loop.Initialize(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown before first reading")
			return nil
		}
		return fmt.Errorf("initializing thing: %w", err)
	}

	repo := catalog.NewSQLiteRepository(db)
	if _, err := catalog.Sync(ctx, repo, th, log.Component("catalog")); err != nil {
		log.Warn("property catalog sync failed", "error", err)
	}

	// Observers are attached before Run so no update is missed.
	th.Subscribe(metrics.Observer())

	if mqttClient != nil {
		stop := startMirroring(ctx, cfg, th, loop, mqttClient, log)
		defer stop()
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Thing:    th,
		Loop:     loop,
		Gatherer: registry,
		Checks:   healthChecks(db, mqttClient),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Discovery.Enabled {
		stop := advertise(cfg, log)
		defer stop()
	}

	log.Info("meterthing running", "thing_id", th.ID(), "properties", len(th.Properties()))

	if err := loop.Run(ctx); err != nil {
		log.Error("sync loop stopped", "error", err)
		return fmt.Errorf("sync loop: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// buildSource returns the configured reading source and its close function.
func buildSource(cfg *config.Config, client *mqtt.Client, log *logging.Logger) (source.Source, func() error, error) {
	switch cfg.Source.Type {
	case config.SourceFile:
		src, err := source.LoadFile(cfg.Source.File.Path, cfg.GetFileInterval())
		if err != nil {
			return nil, nil, fmt.Errorf("loading recording: %w", err)
		}
		return src, func() error { return nil }, nil

	case config.SourceMQTT:
		if client == nil {
			return nil, nil, errors.New("mqtt source requires an MQTT connection")
		}
		format, err := source.ParseFormat(cfg.Source.Format)
		if err != nil {
			return nil, nil, err
		}
		topic := cfg.Source.Topic
		if topic == "" {
			topic = mqtt.Topics{}.Readings(cfg.ThingSlug())
		}
		src := source.NewMQTTSource(client, source.MQTTOptions{
			Topic:  topic,
			QoS:    byte(cfg.MQTT.QoS),
			Format: format,
			Buffer: cfg.Source.Buffer,
		})
		if err := src.Start(); err != nil {
			return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		return src, src.Close, nil

	case config.SourceExec:
		format, err := source.ParseFormat(cfg.Source.Format)
		if err != nil {
			return nil, nil, err
		}
		decoder := process.NewManager(process.Config{
			Name:            "decoder",
			Binary:          cfg.Source.Exec.Command,
			Args:            cfg.Source.Exec.Args,
			Env:             cfg.Source.Exec.Env,
			WorkDir:         cfg.Source.Exec.WorkDir,
			GracefulTimeout: cfg.GetExecStopTimeout(),
		})
		decoder.SetLogger(log.Component("decoder"))
		if err := decoder.Start(); err != nil {
			return nil, nil, fmt.Errorf("starting decoder: %w", err)
		}
		src, err := source.NewStreamSource(decoder.Stdout(), format)
		if err != nil {
			decoder.Stop() //nolint:errcheck // startup failed
			return nil, nil, err
		}
		return &decoderSource{StreamSource: src, decoder: decoder}, func() error {
			src.Close() //nolint:errcheck // always nil
			return decoder.Stop()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

// decoderExitWait bounds how long the end of the decoder's stdout waits for
// the process itself to exit.
const decoderExitWait = 5 * time.Second

// decoderSource reads a decoder's stdout and, when the stream ends, attaches
// the decoder's exit status to the io.EOF so it reaches the loop's error.
type decoderSource struct {
	*source.StreamSource
	decoder *process.Manager
}

// Next implements source.Source.
func (d *decoderSource) Next(ctx context.Context) (obis.Reading, error) {
	r, err := d.StreamSource.Next(ctx)
	if !errors.Is(err, io.EOF) || ctx.Err() != nil {
		return r, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, decoderExitWait)
	defer cancel()
	exitErr := d.decoder.Wait(waitCtx)
	switch {
	case exitErr == nil:
		return r, err
	case errors.Is(exitErr, context.DeadlineExceeded), errors.Is(exitErr, context.Canceled):
		return r, fmt.Errorf("%w: decoder closed its output but is still running", io.EOF)
	default:
		return r, fmt.Errorf("%w: decoder: %w", io.EOF, exitErr)
	}
}

// startMirroring publishes the Thing and its health to MQTT. The returned
// function stops both.
func startMirroring(ctx context.Context, cfg *config.Config, th *thing.Thing, loop *bridge.Loop,
	client *mqtt.Client, log *logging.Logger) (stop func()) {
	slug := cfg.ThingSlug()

	publisher := bridge.NewStatePublisher(th, bridge.PublisherConfig{
		Slug:   slug,
		QoS:    byte(cfg.MQTT.QoS),
		Client: client,
	})
	publisher.SetLogger(log.Component("publisher"))
	th.Subscribe(publisher.Observer())
	publisher.Start(ctx)

	// A clean-session reconnect may follow a broker restart that lost the
	// retained messages.
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing thing")
		publisher.Resync()
	})

	health := bridge.NewHealthReporter(bridge.HealthReporterConfig{
		ThingID:   th.ID(),
		Slug:      slug,
		Version:   version,
		Interval:  cfg.GetHealthInterval(),
		Publisher: client,
		Loop:      loop,
	})
	health.SetLogger(log.Component("health"))
	health.Start(ctx)

	return func() {
		health.Stop()
		publisher.Stop()
	}
}

// healthChecks returns the connections reported by /health.
func healthChecks(db *database.DB, client *mqtt.Client) map[string]api.HealthChecker {
	checks := map[string]api.HealthChecker{"database": db}
	if client != nil {
		checks["mqtt"] = client
	}
	return checks
}

// advertise registers the Web Thing over mDNS. Failure is not fatal: the
// server is still reachable by address.
func advertise(cfg *config.Config, log *logging.Logger) (stop func()) {
	instance := cfg.Discovery.Instance
	if instance == "" {
		instance = cfg.Thing.Title
	}

	adv, err := discovery.NewAdvertiser(discovery.Config{Instance: instance, Port: cfg.API.Port})
	if err == nil {
		err = adv.Start()
	}
	if err != nil {
		log.Warn("mDNS advertisement unavailable", "error", err)
		return func() {}
	}

	log.Info("advertising over mDNS", "instance", adv.InstanceName(), "service", discovery.ServiceType)
	return func() {
		adv.Close() //nolint:errcheck // always nil
	}
}
