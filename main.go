package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kwv/rotsim/train"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Application is the set of run modes main dispatches to
type Application interface {
	ApplyOptions(opts AppOptions)
	LoadConfig() error
	WriteConfig(path string) error
	InitSink()
	Close()
	RunHornBaseline() (trainErr, testErr float64, err error)
	RunTraining(ctx context.Context) (*train.History, error)
	RunPretrain(ctx context.Context) (*train.History, error)
	RunCompare(ctx context.Context) (map[string]*train.History, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, NewApp())
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// run parses args and executes the selected mode
func run(ctx context.Context, args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("rotsim", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to YAML configuration file (defaults when empty)")
	fs.BoolVar(&opts.HornOnly, "horn", false, "Report the Horn baseline error on simulated data and exit")
	fs.BoolVar(&opts.Pretrain, "pretrain", false, "Pre-train the prior model against simulated prior matrices")
	fs.BoolVar(&opts.Compare, "compare", false, "Train the Horn and prior models side by side")
	fs.IntVar(&opts.Epochs, "epochs", 0, "Override the number of epochs from the config")
	fs.Int64Var(&opts.Seed, "seed", 0, "Override the random seed (0 keeps the config value)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish progress scalars to the MQTT broker")
	fs.StringVar(&opts.HTTPAddr, "http", "", "Serve training progress over HTTP on this address (e.g. :8080)")
	fs.StringVar(&opts.WriteConfig, "write-config", "", "Write the effective configuration to this path and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Fprintf(out, "rotsim version: %s\n", Version)

	app.ApplyOptions(opts)
	if err := app.LoadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.WriteConfig != "" {
		if err := app.WriteConfig(opts.WriteConfig); err != nil {
			return err
		}
		fmt.Fprintf(out, "Configuration written to %s\n", opts.WriteConfig)
		return nil
	}

	if opts.HornOnly {
		trainErr, testErr, err := app.RunHornBaseline()
		if err != nil {
			return fmt.Errorf("computing Horn baseline: %w", err)
		}
		fmt.Fprintf(out, "Horn baseline: train %.3f deg | test %.3f deg\n", trainErr, testErr)
		return nil
	}

	app.InitSink()
	defer app.Close()

	var err error
	switch {
	case opts.Pretrain:
		_, err = app.RunPretrain(ctx)
	case opts.Compare:
		_, err = app.RunCompare(ctx)
	default:
		_, err = app.RunTraining(ctx)
	}
	return err
}
