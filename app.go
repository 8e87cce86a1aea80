package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kwv/rotsim/sim"
	"github.com/kwv/rotsim/train"
)

// App encapsulates the application state and dependencies
type App struct {
	Config  *train.Config
	RunID   string
	Sink    train.Sink
	Tracker *train.ProgressTracker
	RNG     *rand.Rand

	// CLI Flags (effectively dependencies)
	ConfigFile string
	Epochs     int
	Seed       int64
	MqttMode   bool
	HTTPAddr   string

	httpServer *http.Server
}

// AppOptions holds parsed command line flags
type AppOptions struct {
	ConfigFile  string
	Epochs      int
	Seed        int64
	MqttMode    bool
	HTTPAddr    string
	HornOnly    bool
	Pretrain    bool
	Compare     bool
	WriteConfig string
}

// NewApp creates a new App instance with a fresh run ID
func NewApp() *App {
	return &App{
		RunID:   uuid.NewString(),
		Sink:    train.NopSink{},
		Tracker: train.NewProgressTracker(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Epochs = opts.Epochs
	a.Seed = opts.Seed
	a.MqttMode = opts.MqttMode
	a.HTTPAddr = opts.HTTPAddr
}

// LoadConfig reads the config file, or uses defaults when none is given,
// then applies CLI overrides and seeds the random source.
func (a *App) LoadConfig() error {
	cfg := train.DefaultConfig()
	if a.ConfigFile != "" {
		loaded, err := train.LoadConfig(a.ConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		log.Println("No config file given, using defaults")
	}

	if a.Epochs > 0 {
		cfg.Epochs = a.Epochs
	}
	if a.Seed != 0 {
		cfg.Seed = a.Seed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Printf("Run %s: dataset=%s model=%s targets=%s precision=%s lr=%g seed=%d",
		a.RunID, cfg.Dataset, cfg.Model, cfg.Targets, cfg.Precision(), cfg.LR, seed)

	a.Config = cfg
	a.RNG = rand.New(rand.NewSource(seed))
	return nil
}

// WriteConfig saves the effective configuration
func (a *App) WriteConfig(path string) error {
	return train.SaveConfig(path, a.Config)
}

// InitSink sets up progress logging and tracking, plus MQTT publishing in
// MQTT mode and the progress endpoints when an HTTP address is set.
// A broker that cannot be reached is logged and the run continues.
func (a *App) InitSink() {
	sinks := train.MultiSink{&train.LogSink{RunID: a.RunID}, a.Tracker}
	if a.MqttMode {
		client, err := train.InitMQTT(a.Config.MQTT)
		if err != nil {
			log.Printf("Warning: MQTT unavailable, continuing without it: %v", err)
		} else if client != nil {
			sinks = append(sinks, train.NewMQTTSink(client, a.Config.MQTT.PublishPrefix, a.RunID))
		}
	}
	a.Sink = sinks

	if a.HTTPAddr != "" {
		a.httpServer = &http.Server{
			Addr:              a.HTTPAddr,
			Handler:           newHTTPServer(a.Tracker, a.RunID),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func(srv *http.Server) {
			log.Printf("Starting HTTP server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server error: %v", err)
			}
		}(a.httpServer)
	}
}

// Close flushes and closes the sink and stops the HTTP server
func (a *App) Close() {
	if err := a.Sink.Close(); err != nil {
		log.Printf("Warning: error closing sink: %v", err)
	}
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Warning: error stopping HTTP server: %v", err)
		}
		a.httpServer = nil
	}
}

// RunTraining trains the configured baseline model
func (a *App) RunTraining(ctx context.Context) (*train.History, error) {
	model, loss, err := train.NewModel(a.Config)
	if err != nil {
		return nil, err
	}
	runner, err := train.NewRunner(a.Config, model, loss, train.NopOptimizer{}, a.Sink, a.RNG)
	if err != nil {
		return nil, err
	}
	if !a.Config.Dynamic() {
		runner.UseData(a.staticDatasets())
	}
	return runner.Run(ctx)
}

// staticDatasets builds the fixed train and test sets of a static run,
// including the prior matrix of every sample.
func (a *App) staticDatasets() (trainData, testData *sim.Dataset) {
	cfg := a.Config
	log.Printf("Generating static dataset: %d train / %d test samples with priors", cfg.NTrain, cfg.NTest)
	return sim.AssembleWithPrior(a.RNG, cfg.NTrain, cfg.NTest, cfg.MatchesPerSample, cfg.SimSigma, cfg.Precision())
}

// RunHornBaseline reports the mean Horn error on freshly generated data
func (a *App) RunHornBaseline() (trainErr, testErr float64, err error) {
	gen, err := train.NewGenerator(a.Config, a.RNG)
	if err != nil {
		return 0, 0, err
	}
	trainData, testData, err := sim.AssembleFast(gen, a.Config.NTrain, a.Config.NTest, a.Config.MatchesPerSample, a.Config.Precision())
	if err != nil {
		return 0, 0, err
	}

	if trainErr, err = sim.MeanHornError(trainData); err != nil {
		return 0, 0, fmt.Errorf("train set: %w", err)
	}
	if testErr, err = sim.MeanHornError(testData); err != nil {
		return 0, 0, fmt.Errorf("test set: %w", err)
	}
	log.Printf("Horn baseline (%s): train %.3f deg | test %.3f deg", gen.Name(), trainErr, testErr)
	return trainErr, testErr, nil
}

// RunPretrain fits the prior model to prior matrices of simulated data
func (a *App) RunPretrain(ctx context.Context) (*train.History, error) {
	cfg := a.Config
	trainData, testData := sim.AssembleWithPrior(a.RNG, cfg.NTrain, cfg.NTest, cfg.MatchesPerSample, cfg.SimSigma, cfg.Precision())
	model := &train.PriorModel{Sigma: cfg.SimSigma, Output: train.TargetPrior}
	return train.Pretrain(ctx, model, train.NopOptimizer{}, trainData, testData, train.PretrainOptions{
		Epochs: cfg.PretrainEpochs,
	})
}

// RunCompare evaluates the Horn and prior models side by side on the same data
func (a *App) RunCompare(ctx context.Context) (map[string]*train.History, error) {
	mode := a.Config.TargetMode()
	entries := []train.CompareEntry{
		{Name: "horn", Model: &train.HornModel{Output: mode}, Mode: mode},
		{Name: "prior", Model: &train.PriorModel{Sigma: a.Config.SimSigma, Output: mode}, Mode: mode},
	}
	return train.Compare(ctx, a.Config, entries, a.Sink, a.RNG)
}
