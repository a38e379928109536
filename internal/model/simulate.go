package model

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/go-kit/kit/log/level"
)

// Simulate performs runs random walks of at most depth steps, spread over
// workers goroutines. Each run is seeded from seed and its index, so a
// given (seed, runs) pair always explores the same walks. The first
// violation found per property is kept.
func (c *Checker) Simulate(ctx context.Context, runs, depth int, seed int64, workers int) (*Report, error) {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}

	start := time.Now()
	report := &Report{Discoveries: make(map[string]*Discovery)}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan int)
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for run := range jobs {
				found, steps := c.walk(rand.New(rand.NewSource(seed+int64(run))), depth)

				mu.Lock()
				report.States += steps
				if steps > report.MaxDepth {
					report.MaxDepth = steps
				}
				for _, d := range found {
					if _, ok := report.Discoveries[d.Property]; !ok {
						report.Discoveries[d.Property] = d
						level.Info(c.logger).Log("msg", "property violated", "property", d.Property, "run", run, "depth", len(d.Path))
					}
				}
				mu.Unlock()
			}
		}()
	}

	var err error
feed:
	for run := 0; run < runs; run++ {
		select {
		case jobs <- run:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	level.Info(c.logger).Log(
		"msg", "simulation done",
		"runs", runs,
		"steps", report.States,
		"violations", len(report.Discoveries),
		"duration", report.Duration,
	)
	return report, nil
}

// walk follows one random path from the initial state and returns the
// violations seen on it.
func (c *Checker) walk(rng *rand.Rand, depth int) ([]*Discovery, int) {
	m := c.model
	props := m.Properties()
	seen := make(map[string]bool)
	var found []*Discovery

	record := func(p Property, s *State, path []Step) {
		if seen[p.Name] {
			return
		}
		seen[p.Name] = true
		found = append(found, &Discovery{
			Property:    p.Name,
			Expectation: p.Expectation,
			Path:        append([]Step(nil), path...),
			Final:       s,
		})
	}

	s := m.Init()
	var path []Step
	for {
		for _, p := range props {
			if p.Expectation == Always && !p.Condition(m, s) {
				record(p, s, path)
			}
		}
		if len(path) >= depth {
			return found, len(path)
		}

		key := string(s.Key())
		var (
			moves []*State
			steps []Step
		)
		for _, a := range m.Actions(s) {
			next, env := m.Next(s, a)
			if string(next.Key()) == key {
				continue
			}
			moves = append(moves, next)
			steps = append(steps, Step{Kind: a.Kind, Envelope: env})
		}

		if len(moves) == 0 {
			for _, p := range props {
				if p.Expectation == Eventually && !p.Condition(m, s) {
					record(p, s, path)
				}
			}
			return found, len(path)
		}

		i := rng.Intn(len(moves))
		s = moves[i]
		path = append(path, steps[i])
	}
}
