// Iotnode is a network-attached measurement node.
//
// It connects to an MQTT broker, listens on a command topic for the
// text protocol ("measure:<amount>,<delay_ms>"), and answers each
// measure command with a stream of calibrated sensor readings on a
// telemetry topic. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	iotnode serve            Connect to the broker and process commands
//	iotnode init [dir]       Write a starter config file
//	iotnode version          Print version and build information
//	iotnode -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Wafl97/IoT-ESP32/internal/admin"
	"github.com/Wafl97/IoT-ESP32/internal/buildinfo"
	"github.com/Wafl97/IoT-ESP32/internal/config"
	"github.com/Wafl97/IoT-ESP32/internal/engine"
	"github.com/Wafl97/IoT-ESP32/internal/events"
	"github.com/Wafl97/IoT-ESP32/internal/mqtt"
	"github.com/Wafl97/IoT-ESP32/internal/queue"
	"github.com/Wafl97/IoT-ESP32/internal/sensor"
)

// main is intentionally minimal. It constructs the OS-level
// environment (context, stdio, argv) and delegates to [run], keeping
// os.Exit and os.Args out of the application logic so the full
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which interferes with
// calling run() concurrently from tests, and the surface here is two
// flags and three subcommands.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s (try -help)", args[i])
			}
		}
	}

	switch command {
	case "", "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		return printVersion(stdout, outputFmt)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s (try -help)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprint(w, `iotnode - MQTT measurement node

Usage:
  iotnode [flags] [command]

Commands:
  serve            Connect to the broker and process commands (default)
  init [dir]       Write a starter config file
  version          Print version and build information
  help             Show this help

Flags:
  -config PATH     Config file (default: search standard locations)
  -o FORMAT        Output format for version: text or json
`)
	return nil
}

func printVersion(w io.Writer, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(buildinfo.Info())
	}
	fmt.Fprintln(w, buildinfo.String())
	return nil
}

// runServe wires the pipeline and blocks until SIGINT/SIGTERM.
//
// Wiring mirrors the data flow: broker → ingestor → queue →
// dispatcher → sampler → (sensor, converter) → client → broker. The
// dispatcher runs on this goroutine; the ingest path runs on the MQTT
// client's delivery goroutine.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stdout, level, cfg.LogFormat)
	logger.Info("starting", "build", buildinfo.String(), "config", path)

	src, err := buildSensor(cfg.Sensor)
	if err != nil {
		return err
	}
	conv, err := sensor.NewConverter(sensor.Calibration(cfg.Calibration))
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load instance id: %w", err)
	}
	clientID := mqtt.ClientID(cfg.MQTT.ClientID, instanceID)
	logger.Info("mqtt identity", "instance_id", instanceID, "client_id", clientID)

	bus := events.New()
	q := queue.New[string]()
	ingest := mqtt.NewIngestor(q, bus, logger)
	client := mqtt.NewClient(cfg.MQTT, clientID, ingest, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Broker unreachable at startup is the one fatal transport error.
	if err := client.Start(ctx); err != nil {
		return err
	}

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.New(cfg.Admin, bus, client.AwaitConnection, logger)
		if err := adminSrv.Start(ctx); err != nil {
			return err
		}
	}

	sampler := engine.NewSampler(src, conv, client, bus, logger)
	dispatcher := engine.NewDispatcher(q, sampler, bus, logger)

	// Blocks until shutdown; per-command failures never escape it.
	runErr := dispatcher.Run(ctx)
	if runErr != nil && ctx.Err() != nil {
		runErr = nil // clean signal-driven shutdown
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin shutdown failed", "error", err)
		}
	}
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Error("mqtt shutdown failed", "error", err)
	}

	return runErr
}

func buildSensor(cfg config.SensorConfig) (sensor.Sensor, error) {
	switch cfg.Mode {
	case "iio":
		s, err := sensor.NewIIO(cfg.IIOPath)
		if err != nil {
			return nil, fmt.Errorf("open iio sensor: %w", err)
		}
		return s, nil
	case "sim":
		return sensor.NewSim(cfg.SimCenter, cfg.SimJitter, time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("sensor mode %q is not one of: sim, iio", cfg.Mode)
	}
}

// runInit writes a commented starter config into dir, refusing to
// overwrite an existing one.
func runInit(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "iotnode.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "wrote %s\n", path)
	return nil
}

const starterConfig = `# iotnode configuration
log_level: info # trace|debug|info|warn|error
log_format: text # text|json
data_dir: .

mqtt:
  broker: mqtt://192.168.1.216:1883
  username: ""
  password: "" # supports ${ENV_VAR} expansion
  # client_id: my-node          # default: derived from the instance id
  command_topic: iot/assignment2/topics/subscribe
  telemetry_topic: iot/assignment2/topics/publish
  # availability_topic:         # default: <telemetry_topic>/availability
  connect_timeout_sec: 30

sensor:
  mode: sim # sim|iio
  iio_path: /sys/bus/iio/devices/iio:device0/in_voltage0_raw
  sim_center: 1800
  sim_jitter: 120

# Two reference (reading, value) pairs for the affine conversion.
# Note: v_1 pairs with t_low in the formula even though the original
# constants label it the other way around.
calibration:
  t_low: 0.0
  t_high: 50.0
  v_1: 2100.0
  v_2: 1558.0

admin:
  enabled: false
  address: 127.0.0.1
  port: 9180
`
