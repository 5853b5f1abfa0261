package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/crucible-bench/crucible/internal/definition"
	"github.com/crucible-bench/crucible/internal/extract"
	"github.com/crucible-bench/crucible/internal/overlay"
	"github.com/crucible-bench/crucible/internal/result"
	"github.com/crucible-bench/crucible/internal/sandbox"
	"github.com/crucible-bench/crucible/internal/subject"
)

// DefaultServerPort is assumed when the materialized config does not pin a
// server.port for the subject to bind.
const DefaultServerPort = 8080

// VariantOpts drives all scenarios × iterations for one (variant, provider)
// pair against one supervised subject process. Pairs are fully independent:
// every artifact is namespaced by variant and provider.
type VariantOpts struct {
	Variant       *definition.Variant
	Provider      string
	Scenarios     []definition.Scenario
	Iterations    int
	RunDir        string
	SubjectBin    string
	StartupGrace  time.Duration
	ShutdownGrace time.Duration
	CallTimeout   time.Duration
	Patterns      map[string]string

	// Progress, when set, observes each record as it is produced.
	Progress func(rec *result.Record)
}

// RunVariant materializes the pair's configuration, starts its subject and
// runs every scenario iteration sequentially against it. The subject is
// always stopped before returning, whatever happens to the scenarios. A
// returned error means the whole pair was skipped (config or launch
// failure); scenario-level failures come back as records, not errors.
func RunVariant(ctx context.Context, opts *VariantOpts) ([]result.Record, error) {
	configPath, err := overlay.Materialize(opts.Variant, opts.Provider, result.ConfigsDir(opts.RunDir))
	if err != nil {
		return nil, err
	}
	root, err := overlay.Load(configPath)
	if err != nil {
		return nil, err
	}

	pairName := fmt.Sprintf("%s_%s", opts.Variant.Name, opts.Provider)
	subj, err := subject.Start(ctx, subject.Options{
		Bin:           opts.SubjectBin,
		ConfigPath:    configPath,
		LogPath:       filepath.Join(result.LogsDir(opts.RunDir), pairName+"_server.log"),
		StartupGrace:  opts.StartupGrace,
		ShutdownGrace: opts.ShutdownGrace,
	})
	if err != nil {
		return nil, err
	}
	defer subj.Stop()

	port := serverPort(root)

	var records []result.Record
	for i := range opts.Scenarios {
		sc := &opts.Scenarios[i]
		agent := sc.Agent
		if agent == "" {
			agent = overlay.FirstAgent(root)
		}
		for iter := 1; iter <= opts.Iterations; iter++ {
			rec := runScenario(ctx, opts, sc, agent, port, iter)
			if opts.Progress != nil {
				opts.Progress(&rec)
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// serverPort reads the subject's listen port from the materialized config.
func serverPort(root *yaml.Node) int {
	if n, ok := overlay.GetPath(root, "server.port"); ok {
		if port, err := strconv.Atoi(n.Value); err == nil && port > 0 {
			return port
		}
	}
	return DefaultServerPort
}

// runScenario issues one call invocation and turns its outcome into an
// execution record. A timed-out call is abandoned, never salvaged; a
// non-zero exit skips extraction entirely.
func runScenario(ctx context.Context, opts *VariantOpts, sc *definition.Scenario, agent string, port, iter int) result.Record {
	rec := result.Record{
		Scenario:  sc.Name,
		Variant:   opts.Variant.Name,
		Provider:  opts.Provider,
		Iteration: iter,
	}
	timeout := time.Duration(sc.Timeout(int(opts.CallTimeout.Seconds()))) * time.Second

	var (
		output   string
		exitCode int
		timedOut bool
		elapsed  time.Duration
		callErr  error
	)
	if opts.Variant.Image != "" {
		res, err := sandbox.RunCall(ctx, &sandbox.CallOpts{
			Image:     opts.Variant.Image,
			Bin:       opts.SubjectBin,
			Agent:     agent,
			Prompt:    sc.Prompt,
			ServerURL: fmt.Sprintf("http://host.docker.internal:%d", port),
			Timeout:   timeout,
		})
		if err != nil {
			log.WithError(err).Warnf("sandbox call failed for %s/%s", opts.Variant.Name, sc.Name)
			rec.Success = false
			rec.Error = result.ErrCallFailure
			return rec
		}
		output, exitCode, timedOut, elapsed = res.Output, res.ExitCode, res.TimedOut, res.Duration
	} else {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(callCtx, opts.SubjectBin, "call", agent, sc.Prompt)
		cmd.Env = append(os.Environ(), fmt.Sprintf("SUBJECT_SERVER=http://localhost:%d", port))
		start := time.Now()
		out, err := cmd.Output()
		elapsed = time.Since(start)
		output = string(out)
		timedOut = callCtx.Err() == context.DeadlineExceeded
		if err != nil && !timedOut {
			callErr = err
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
	}

	writeOutputArtifact(opts, sc.Name, iter, output)
	rec.Output = result.Truncate(output)

	if timedOut {
		rec.Success = false
		rec.Error = result.ErrTimeout
		rec.ElapsedS = timeout.Seconds()
		return rec
	}
	if exitCode != 0 || callErr != nil {
		rec.Success = false
		rec.Error = result.ErrCallFailure
		rec.ElapsedS = elapsed.Seconds()
		return rec
	}

	rec.ElapsedS = elapsed.Seconds()
	rec.Metrics = extract.Metrics(output, opts.Patterns)

	eval := extract.Evaluate(output, sc.Criteria)
	rec.Criteria = eval.Results
	rec.Score = eval.Score
	rec.Passed = eval.AllMet

	rec.Success = true
	if missing := extract.MissingKeywords(output, sc.Keywords); len(missing) > 0 {
		rec.Success = false
		rec.Error = result.ErrCriterionMiss
	}
	if len(sc.Criteria) > 0 && !eval.AllMet {
		rec.Success = false
		rec.Error = result.ErrCriterionMiss
	}
	return rec
}

func writeOutputArtifact(opts *VariantOpts, scenario string, iter int, output string) {
	dir := result.LogsDir(opts.RunDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Warn("creating logs dir")
		return
	}
	name := fmt.Sprintf("%s_%s_%s_%d.txt", opts.Variant.Name, opts.Provider, scenario, iter)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(output), 0o644); err != nil {
		log.WithError(err).Warnf("writing output artifact %s", name)
	}
}
