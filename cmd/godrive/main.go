package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cjeanneret/godrive/internal/config"
	"github.com/cjeanneret/godrive/internal/debug"
	"github.com/cjeanneret/godrive/internal/logic/routine"
	"github.com/cjeanneret/godrive/internal/telemetry"
	"github.com/cjeanneret/godrive/internal/web"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp(ctx).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the command tree. Commands that drive the robot run under
// ctx, so cancelling it stops motion and shuts the dashboard down.
func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "godrive"
	app.Usage = "drive a differential chassis through scripted routines"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: filepath.Join("configs", "default.yaml"),
			Usage: "path to config file",
		},
		cli.IntFlag{
			Name:  "debug",
			Value: -1,
			Usage: "override debug level (0-4)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "routines",
			Usage:  "list the available routines",
			Action: listRoutines,
		},
		{
			Name:      "run",
			Usage:     "run one routine and exit",
			ArgsUsage: "<routine>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "csv", Usage: "write the telemetry trace to this CSV file"},
				cli.StringFlag{Name: "serial", Usage: "stream telemetry rows to this serial device"},
				cli.StringFlag{Name: "plot", Usage: "save trace and path plots into this directory"},
			},
			Action: func(c *cli.Context) error { return runRoutine(ctx, c) },
		},
		{
			Name:  "serve",
			Usage: "start the web dashboard",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "port, p", Usage: "listen port (0 = config default)"},
				cli.DurationFlag{Name: "cooldown", Value: 2 * time.Second, Usage: "minimum time between two routine starts"},
			},
			Action: func(c *cli.Context) error { return serve(ctx, c) },
		},
	}
	return app
}

// loadConfig loads the global --config file and initializes debug output.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if lvl := c.GlobalInt("debug"); lvl >= 0 {
		if lvl > 4 {
			return nil, fmt.Errorf("debug level must be between 0 and 4, got %d", lvl)
		}
		cfg.Defaults.DebugLevel = lvl
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", path)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Backend", cfg.Hardware.Backend)
	return cfg, nil
}

func listRoutines(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	runner, err := routine.NewRunner(nil, cfg.Programs)
	if err != nil {
		return err
	}
	for _, name := range runner.Names() {
		p, _ := runner.Lookup(name)
		if p.Description != "" {
			fmt.Fprintf(c.App.Writer, "%-16s %s\n", name, p.Description)
		} else {
			fmt.Fprintln(c.App.Writer, name)
		}
	}
	return nil
}

// telemetryOptions selects the recorder sinks. Empty fields fall back to
// the telemetry section of the config.
type telemetryOptions struct {
	csvPath    string
	serialPort string
	plotDir    string
}

func (o telemetryOptions) withDefaults(cfg *config.Config) telemetryOptions {
	if o.csvPath == "" {
		o.csvPath = cfg.Telemetry.CSVPath
	}
	if o.serialPort == "" {
		o.serialPort = cfg.Telemetry.SerialPort
	}
	if o.plotDir == "" {
		o.plotDir = cfg.Telemetry.PlotDir
	}
	return o
}

func newRecorder(cfg *config.Config, src telemetry.Source, opts telemetryOptions) (*telemetry.Recorder, error) {
	rec := telemetry.NewRecorder(src, cfg.TelemetryPeriod())
	if opts.csvPath != "" {
		sink, err := telemetry.OpenCSV(opts.csvPath)
		if err != nil {
			return nil, err
		}
		rec.AddSink(sink)
		debug.Value("Telemetry CSV", opts.csvPath)
	}
	if opts.serialPort != "" {
		sink, err := telemetry.OpenSerial(opts.serialPort, cfg.Telemetry.Baud)
		if err != nil {
			return nil, multierr.Append(err, rec.Close())
		}
		rec.AddSink(sink)
		debug.Value("Telemetry serial", opts.serialPort)
	}
	return rec, nil
}

func runRoutine(ctx context.Context, c *cli.Context) error {
	if c.NArg() != 1 {
		cli.ShowCommandHelp(c, "run")
		return errors.New("run needs exactly one routine name")
	}
	name := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	opts := telemetryOptions{
		csvPath:    c.String("csv"),
		serialPort: c.String("serial"),
		plotDir:    c.String("plot"),
	}.withDefaults(cfg)
	return execute(ctx, cfg, name, opts)
}

// execute builds the robot, runs one routine under telemetry, then writes
// the plots and closes everything.
func execute(ctx context.Context, cfg *config.Config, name string, opts telemetryOptions) (err error) {
	hwCtx, stopHW := context.WithCancel(ctx)
	defer stopHW()

	bot, err := newRobot(hwCtx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, bot.Close()) }()

	runner, err := routine.NewRunner(bot.chassis, cfg.Programs)
	if err != nil {
		return err
	}
	if _, ok := runner.Lookup(name); !ok {
		return fmt.Errorf("unknown routine %q (have %v)", name, runner.Names())
	}

	rec, err := newRecorder(cfg, bot.chassis, opts)
	if err != nil {
		return err
	}
	recCtx, stopRec := context.WithCancel(hwCtx)
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		rec.Run(recCtx)
	}()

	start := time.Now()
	runErr := runner.Run(ctx, name)
	stopRec()
	<-recDone

	debug.Summary("Routine " + name)
	debug.Pose("Final pose", bot.chassis.X(), bot.chassis.Y(), bot.chassis.AbsoluteHeading())
	debug.Info("Elapsed %v, %d samples", time.Since(start).Round(time.Millisecond), len(rec.Samples()))

	err = multierr.Append(runErr, rec.Close())
	if opts.plotDir != "" && len(rec.Samples()) > 0 {
		err = multierr.Append(err, savePlots(rec.Samples(), name, opts.plotDir))
	}
	return err
}

func savePlots(samples []telemetry.Sample, name, dir string) error {
	trace := filepath.Join(dir, name+"_trace.png")
	path := filepath.Join(dir, name+"_path.png")
	err := multierr.Append(
		telemetry.SaveTrace(samples, name, trace),
		telemetry.SavePath(samples, name, path),
	)
	if err == nil {
		debug.Value("Trace plot", trace)
		debug.Value("Path plot", path)
	}
	return err
}

func serve(ctx context.Context, c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	port := c.Int("port")
	if port == 0 {
		port = cfg.Defaults.Port
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", port)
	}

	bot, err := newRobot(ctx, cfg)
	if err != nil {
		return err
	}
	defer bot.Close()

	runner, err := routine.NewRunner(bot.chassis, cfg.Programs)
	if err != nil {
		return err
	}
	rec, err := newRecorder(cfg, bot.chassis, telemetryOptions{}.withDefaults(cfg))
	if err != nil {
		return err
	}
	defer rec.Close()
	go rec.Run(ctx)

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	srv := web.NewServer(fmt.Sprintf(":%d", port), web.Deps{
		Broadcaster: broadcaster,
		Robot:       bot.chassis,
		Routines:    runner,
		Recorder:    rec,
		Cooldown:    c.Duration("cooldown"),
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}
