package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/swarm"
	"github.com/pthm-cable/army/telemetry"
)

// Target is the flock shape the tuner steers toward.
type Target struct {
	Polarization float64 // 0..1
	FlockRadius  float64 // mean distance to centroid
}

// FitnessEvaluator runs headless simulations and scores their final shape.
type FitnessEvaluator struct {
	params     *ParamVector
	baseConfig *config.Config
	target     Target
	count      int
	ticks      uint64
	seeds      []int64
	logger     *slog.Logger

	mu   sync.Mutex
	last telemetry.WindowStats // averaged over seeds, from the latest Evaluate
}

// NewFitnessEvaluator creates a new evaluator. Each run has count agents and
// lasts ticks ticks; shape is measured over the final stats window.
func NewFitnessEvaluator(params *ParamVector, baseCfg *config.Config, target Target, count int, ticks uint64, seeds []int64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		baseConfig: baseCfg,
		target:     target,
		count:      count,
		ticks:      ticks,
		seeds:      seeds,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Last returns the seed-averaged stats from the most recent evaluation.
func (fe *FitnessEvaluator) Last() telemetry.WindowStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.last
}

type seedResult struct {
	stats telemetry.WindowStats
	err   error
}

// Evaluate computes fitness for raw parameter values (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg, err := fe.configFor(x)
	if err != nil {
		fe.logger.Error("building config", "error", err)
		return math.Inf(1)
	}

	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			stats, err := fe.runSimulation(cfg, s)
			results[idx] = seedResult{stats: stats, err: err}
		}(i, seed)
	}
	wg.Wait()

	var avg telemetry.WindowStats
	for _, r := range results {
		if r.err != nil {
			fe.logger.Error("run failed", "error", r.err)
			return math.Inf(1)
		}
		avg.Polarization += r.stats.Polarization
		avg.FlockRadius += r.stats.FlockRadius
		avg.SpeedMean += r.stats.SpeedMean
		avg.MeanNeighbors += r.stats.MeanNeighbors
	}
	n := float64(len(results))
	avg.Polarization /= n
	avg.FlockRadius /= n
	avg.SpeedMean /= n
	avg.MeanNeighbors /= n

	fe.mu.Lock()
	fe.last = avg
	fe.mu.Unlock()

	return fe.score(avg)
}

// score is the squared error of polarization plus the squared relative error
// of the flock radius.
func (fe *FitnessEvaluator) score(s telemetry.WindowStats) float64 {
	dp := s.Polarization - fe.target.Polarization
	dr := s.FlockRadius - fe.target.FlockRadius
	if fe.target.FlockRadius > 0 {
		dr /= fe.target.FlockRadius
	}
	return dp*dp + dr*dr
}

// configFor deep-copies the base config and applies x.
func (fe *FitnessEvaluator) configFor(x []float64) (*config.Config, error) {
	data, err := yaml.Marshal(fe.baseConfig)
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	fe.params.ApplyToConfig(cfg, x)
	cfg.Swarm.Count = fe.count
	cfg.Solver.Workers = 1 // seeds already run in parallel
	cfg.Telemetry.StatsWindow = int(max(fe.ticks/10, 1))
	return cfg, nil
}

func (fe *FitnessEvaluator) runSimulation(cfg *config.Config, seed int64) (telemetry.WindowStats, error) {
	sim, err := swarm.New(cfg, swarm.Options{Seed: seed, Logger: fe.logger})
	if err != nil {
		return telemetry.WindowStats{}, err
	}
	defer sim.Close()

	coll := telemetry.NewCollector(cfg.Telemetry.StatsWindow, telemetry.CollectorOptions{Logger: fe.logger})
	clock := swarm.NewClock(sim, coll)
	if err := clock.Run(context.Background(), fe.ticks); err != nil {
		return telemetry.WindowStats{}, err
	}
	stats, ok := coll.Last()
	if !ok {
		return telemetry.WindowStats{}, fmt.Errorf("no stats window completed in %d ticks", fe.ticks)
	}
	return stats, nil
}
