// Copyright 2025 The Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package run implements relay run: execute a pipeline locally.
package run

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayci/relay/internal/action"
	"github.com/relayci/relay/internal/artifact"
	"github.com/relayci/relay/internal/commands/plan"
	"github.com/relayci/relay/internal/commands/shared"
	"github.com/relayci/relay/internal/config"
	"github.com/relayci/relay/internal/history"
	"github.com/relayci/relay/internal/log"
	"github.com/relayci/relay/internal/metrics"
	"github.com/relayci/relay/internal/secretstore"
	"github.com/relayci/relay/internal/tracing"
	"github.com/relayci/relay/pkg/pipeline"
)

// options holds the run command's flag values.
type options struct {
	inputs         []string
	inputFile      string
	watch          bool
	dryRun         bool
	keepWorkspaces bool
	noHistory      bool
	noInteractive  bool
	maxParallel    int
	stepTimeout    time.Duration
	sourceDir      string
	runnerLabel    string
	tracePath      string
	metricsAddr    string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Execute a pipeline",
		Long: `Execute a pipeline definition locally: jobs run in dependency
order, matrix cells fan out in parallel, and artifacts flow between
jobs through the run's artifact store.

Trigger inputs are supplied with --input name=value. Missing required
inputs are prompted for interactively when stdin is a terminal.`,
		Example: `  relay run ci.yaml
  relay run ci.yaml --input filepath=src/sdk --input id=nightly
  relay run ci.yaml --watch
  relay run ci.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Trigger input as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.inputFile, "input-file", "", "JSON file with trigger inputs")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-run when the pipeline or source tree changes")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the execution plan without running")
	cmd.Flags().BoolVar(&opts.keepWorkspaces, "keep-workspaces", false, "Keep run workspaces for debugging")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record the run in history")
	cmd.Flags().BoolVar(&opts.noInteractive, "no-interactive", false, "Never prompt; fail on missing inputs")
	cmd.Flags().IntVar(&opts.maxParallel, "max-parallel", 0, "Max concurrently running matrix cells (default from config)")
	cmd.Flags().DurationVar(&opts.stepTimeout, "step-timeout", 0, "Default per-step timeout (default from config)")
	cmd.Flags().StringVar(&opts.sourceDir, "source", "", "Source tree for checkout (default: pipeline file directory)")
	cmd.Flags().StringVar(&opts.runnerLabel, "runner-label", "", "runs-on label this engine satisfies (default from config)")
	cmd.Flags().StringVar(&opts.tracePath, "trace", "", "Write OpenTelemetry spans to this file (or set TRACING_PATH)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")

	return cmd
}

func execute(ctx context.Context, path string, opts *options) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return shared.NewInvalidPipelineError("loading config", err)
	}

	if opts.metricsAddr != "" {
		ms, err := startMetricsServer(opts.metricsAddr)
		if err != nil {
			return err
		}
		defer ms.Close()
	}

	if opts.watch {
		return watchLoop(ctx, path, opts, cfg)
	}
	return runOnce(ctx, path, opts, cfg)
}

// metricsServer exposes the Prometheus endpoint while a run executes.
// With --watch the server outlives individual runs.
type metricsServer struct {
	srv *http.Server
	ln  net.Listener
}

func startMetricsServer(addr string) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, shared.NewRunFailedError("metrics listener", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	m := &metricsServer{srv: &http.Server{Handler: mux}, ln: ln}
	go func() { _ = m.srv.Serve(ln) }()
	return m, nil
}

func (m *metricsServer) Addr() string { return m.ln.Addr().String() }

func (m *metricsServer) Close() { _ = m.srv.Close() }

// runOnce executes the pipeline a single time.
func runOnce(ctx context.Context, path string, opts *options, cfg *config.Config) error {
	logger := log.New(log.FromEnv())

	p, err := loadPipeline(path)
	if err != nil {
		return err
	}

	registry := action.DefaultRegistry()
	if err := pipeline.ValidateActions(p, registry.Known()); err != nil {
		return shared.NewInvalidPipelineError("invalid pipeline", err)
	}

	inputs, err := resolveInputs(p, opts)
	if err != nil {
		return err
	}

	if opts.dryRun {
		layers, err := pipeline.Layers(p.Jobs)
		if err != nil {
			return shared.NewInvalidPipelineError("invalid pipeline", err)
		}
		fmt.Print(plan.Render(p, layers))
		return nil
	}

	secretValues, err := resolveSecrets(p)
	if err != nil {
		return err
	}

	tracer, err := tracing.Setup(opts.tracePath, versionString())
	if err != nil {
		return shared.NewRunFailedError("tracing setup", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	store, err := openHistory(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	sourceDir := opts.sourceDir
	if sourceDir == "" {
		sourceDir = filepath.Dir(path)
	}
	maxParallel := opts.maxParallel
	if maxParallel == 0 {
		maxParallel = cfg.MaxParallel
	}
	stepTimeout := opts.stepTimeout
	if stepTimeout == 0 {
		stepTimeout = time.Duration(cfg.StepTimeout) * time.Second
	}
	runnerLabel := opts.runnerLabel
	if runnerLabel == "" {
		runnerLabel = cfg.RunnerLabel
	}

	exec := pipeline.NewExecutor(registry, action.NewShellRunner()).
		WithLogger(logger).
		WithTracer(tracer.Tracer("relay")).
		WithSecrets(secretValues).
		WithMaxParallel(maxParallel).
		WithStepTimeout(stepTimeout).
		WithRunnerLabel(runnerLabel).
		WithSourceDir(sourceDir).
		WithKeepWorkspaces(opts.keepWorkspaces || cfg.KeepWorkspaces).
		WithArtifactStore(func(runDir string) (pipeline.ArtifactStore, error) {
			return artifact.NewFSStore(filepath.Join(runDir, "artifacts"))
		})

	metrics.Attach(exec.Events())
	if !shared.GetQuiet() && !shared.GetJSON() {
		attachProgress(exec.Events(), secretValues)
	}

	run, err := exec.Execute(ctx, p, inputs)
	if err != nil {
		return shared.NewRunFailedError("executing pipeline", err)
	}

	if err := store.Record(ctx, run); err != nil {
		// History failures must not change the run outcome.
		logger.Warn("recording run history failed", "error", err)
	}

	if shared.GetJSON() {
		type response struct {
			shared.JSONResponse
			Run *pipeline.Run `json:"run"`
		}
		if err := shared.EmitJSON(response{
			JSONResponse: shared.NewJSONResponse("run", run.Status == pipeline.StatusSuccess),
			Run:          run,
		}); err != nil {
			return err
		}
	} else {
		printSummary(run)
	}

	if run.Status != pipeline.StatusSuccess {
		return shared.NewRunFailedError(fmt.Sprintf("run %s: %s", run.ID, run.Status), nil)
	}
	return nil
}

func loadPipeline(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, shared.NewInvalidPipelineError("reading pipeline", err)
	}
	p, err := pipeline.ParseDefinition(data)
	if err != nil {
		return nil, shared.NewInvalidPipelineError("invalid pipeline", err)
	}
	return p, nil
}

// resolveSecrets resolves every secret the pipeline references before
// execution starts; a missing secret should fail fast, not mid-run.
func resolveSecrets(p *pipeline.Pipeline) (map[string]string, error) {
	names := secretstore.References(p)
	if len(names) == 0 {
		return nil, nil
	}
	values, err := secretstore.NewResolver().ResolveAll(names)
	if err != nil {
		return nil, shared.NewSecretError("resolving secrets", err)
	}
	return values, nil
}

func openHistory(opts *options) (history.Store, error) {
	if opts.noHistory {
		return history.NewMemoryStore(), nil
	}
	path, err := config.HistoryDBPath()
	if err != nil {
		return nil, shared.NewRunFailedError("locating history database", err)
	}
	store, err := history.OpenSQLite(path)
	if err != nil {
		return nil, shared.NewRunFailedError("opening history database", err)
	}
	return store, nil
}

func versionString() string {
	v, _, _ := shared.GetVersion()
	return v
}
