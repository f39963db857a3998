package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
	"chatkit/internal/infra/logger"
	"chatkit/internal/infra/metrics"
	"chatkit/internal/infra/tracer"
	"chatkit/internal/usecase/eventbus"
	"chatkit/internal/usecase/reducer"
	"chatkit/internal/usecase/registry"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "replay":
		err = runReplay(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "schema":
		err = runSchema(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'chatkit --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`chatkit - thread-state protocol tools

USAGE:
    chatkit COMMAND [FLAGS] [ARGS]

COMMANDS:
    replay LOG...          Reduce event logs (JSON lines) and print the threads
    validate UNION [FILE]  Validate JSON payloads (one per line) against a union
    schema [UNION]         Print the JSON Schema of a union (all unions if omitted)
    inspect LOG            Replay a log and render its transcript
    query LOG...           Answer requests (JSON lines on stdin) from replayed logs

UNIONS:
    request, event, item, update, source, task, attachment, status, user_content

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file (default: ./chatkit.yaml)
    --stats            Print collected metrics after replay/validate/query
    --limit N          inspect: items per page
    --after CURSOR     inspect: continue from a page cursor
    --order asc|desc   inspect: item order (default asc)
    --width N          inspect: wrap width (default 80)

CONFIGURATION:
    Config file: ./chatkit.yaml
    Environment: CHATKIT_* variables override config`)
}

// cliArgs holds the flags shared by every subcommand.
type cliArgs struct {
	Config     string
	Stats      bool
	Limit      *int
	After      *string
	Order      string
	Width      int
	Positional []string
}

// parseArgs reads flags in either "--flag value" or "--flag=value" form.
func parseArgs(args []string) (cliArgs, error) {
	out := cliArgs{Config: configPath(), Order: "asc", Width: 80}
	value := func(i *int, name string) (string, error) {
		arg := args[*i]
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, nil
		}
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s needs a value", name)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, _, _ := strings.Cut(arg, "=")
		switch name {
		case "--config":
			v, err := value(&i, name)
			if err != nil {
				return out, err
			}
			out.Config = v
		case "--stats":
			out.Stats = true
		case "--limit":
			v, err := value(&i, name)
			if err != nil {
				return out, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return out, fmt.Errorf("--limit: %w", err)
			}
			out.Limit = &n
		case "--after":
			v, err := value(&i, name)
			if err != nil {
				return out, err
			}
			out.After = &v
		case "--order":
			v, err := value(&i, name)
			if err != nil {
				return out, err
			}
			out.Order = v
		case "--width":
			v, err := value(&i, name)
			if err != nil {
				return out, err
			}
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return out, fmt.Errorf("--width must be a positive integer")
			}
			out.Width = n
		default:
			if strings.HasPrefix(arg, "--") {
				return out, fmt.Errorf("unknown flag %s", name)
			}
			out.Positional = append(out.Positional, arg)
		}
	}
	return out, nil
}

func configPath() string {
	if p := os.Getenv("CHATKIT_CONFIG"); p != "" {
		return p
	}
	return "chatkit.yaml"
}

// runtime bundles the wiring every subcommand needs.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	registry *registry.Registry
	bus      *eventbus.Bus
	close    func()
}

func setup(ctx context.Context, cfgPath string) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		_ = logCloser()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(cfg.Metrics, reg)

	actions, err := registry.NewActionSchemas(cfg.Actions)
	if err != nil {
		_ = tracerShutdown(ctx)
		_ = logCloser()
		return nil, fmt.Errorf("actions: %w", err)
	}

	bus := eventbus.New(log, m)
	bus.SubscribeAll(func(ctx context.Context, s domain.Signal) {
		log.InfoContext(ctx, "signal", "type", s.Type(), "thread_id", s.ThreadID)
	})

	return &runtime{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		gatherer: reg,
		registry: registry.New(actions, m, log),
		bus:      bus,
		close: func() {
			bus.Close()
			_ = tracerShutdown(ctx)
			_ = logCloser()
		},
	}, nil
}

func (rt *runtime) reducerOptions() reducer.Options {
	return reducer.Options{
		IgnoreLateUpdates: rt.cfg.Reducer.IgnoreLateUpdates,
		Signals:           rt.bus,
		Metrics:           rt.metrics,
		Logger:            rt.log,
	}
}
