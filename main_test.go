package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/kwv/rotsim/train"
)

type mockApp struct {
	opts      AppOptions
	called    map[string]bool
	loadErr   error
	runErr    error
	writePath string
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) LoadConfig() error            { m.called["LoadConfig"] = true; return m.loadErr }
func (m *mockApp) InitSink()                    { m.called["InitSink"] = true }
func (m *mockApp) Close()                       { m.called["Close"] = true }

func (m *mockApp) WriteConfig(path string) error {
	m.called["WriteConfig"] = true
	m.writePath = path
	return nil
}

func (m *mockApp) RunHornBaseline() (float64, float64, error) {
	m.called["RunHornBaseline"] = true
	return 0.5, 0.75, m.runErr
}

func (m *mockApp) RunTraining(context.Context) (*train.History, error) {
	m.called["RunTraining"] = true
	return &train.History{}, m.runErr
}

func (m *mockApp) RunPretrain(context.Context) (*train.History, error) {
	m.called["RunPretrain"] = true
	return &train.History{}, m.runErr
}

func (m *mockApp) RunCompare(context.Context) (map[string]*train.History, error) {
	m.called["RunCompare"] = true
	return nil, m.runErr
}

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Default",
			args:           []string{"--config", "exp.yaml"},
			expectedCalled: "RunTraining",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.ConfigFile != "exp.yaml" {
					t.Errorf("expected ConfigFile exp.yaml, got %s", opts.ConfigFile)
				}
			},
		},
		{
			name:           "Horn",
			args:           []string{"--horn"},
			expectedCalled: "RunHornBaseline",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.HornOnly {
					t.Error("expected HornOnly true")
				}
			},
		},
		{
			name:           "Pretrain",
			args:           []string{"--pretrain", "--epochs", "3"},
			expectedCalled: "RunPretrain",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Epochs != 3 {
					t.Errorf("expected Epochs 3, got %d", opts.Epochs)
				}
			},
		},
		{
			name:           "Compare",
			args:           []string{"--compare", "--mqtt", "--seed", "9", "--http", ":8080"},
			expectedCalled: "RunCompare",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.HTTPAddr != ":8080" {
					t.Errorf("expected HTTPAddr :8080, got %s", opts.HTTPAddr)
				}
				if !opts.MqttMode {
					t.Error("expected MqttMode true")
				}
				if opts.Seed != 9 {
					t.Errorf("expected Seed 9, got %d", opts.Seed)
				}
			},
		},
		{
			name:           "WriteConfig",
			args:           []string{"--write-config", "out.yaml"},
			expectedCalled: "WriteConfig",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.WriteConfig != "out.yaml" {
					t.Errorf("expected WriteConfig out.yaml, got %s", opts.WriteConfig)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			if err := run(context.Background(), tt.args, &out, app); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if !app.called["LoadConfig"] {
				t.Error("expected LoadConfig to be called")
			}
			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called, called: %v", tt.expectedCalled, app.called)
			}
			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_SinkLifecycle(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	if err := run(context.Background(), nil, &out, app); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !app.called["InitSink"] || !app.called["Close"] {
		t.Errorf("expected sink to be opened and closed, called: %v", app.called)
	}

	app = newMockApp()
	out.Reset()
	if err := run(context.Background(), []string{"--horn"}, &out, app); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if app.called["InitSink"] {
		t.Error("horn baseline should not open a sink")
	}
	if !strings.Contains(out.String(), "Horn baseline: train 0.500 deg | test 0.750 deg") {
		t.Errorf("expected baseline output, got: %s", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	app := newMockApp()
	app.loadErr = errors.New("config file not found: x.yaml")
	err := run(context.Background(), []string{"--config", "x.yaml"}, &bytes.Buffer{}, app)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Errorf("expected loading config error, got %v", err)
	}
	if app.called["RunTraining"] {
		t.Error("training must not start without a config")
	}

	app = newMockApp()
	app.runErr = context.Canceled
	err = run(context.Background(), nil, &bytes.Buffer{}, app)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !app.called["Close"] {
		t.Error("expected Close after a failed run")
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run(context.Background(), []string{"--help"}, &out, app)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected flag.ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage of rotsim") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
}

func TestRun_Version(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	if err := run(context.Background(), []string{}, &out, app); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), "rotsim version: "+Version) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}
}
