package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"causalkv/internal/protocol"
)

const progressEvery = 10000

// Step is one transition on a discovery path.
type Step struct {
	Kind     ActionKind
	Envelope protocol.Envelope
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.Envelope)
}

// Discovery is the first path found that violates a property.
type Discovery struct {
	Property    string
	Expectation Expectation
	Path        []Step
	Final       *State
}

func (d *Discovery) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %q violated after %d steps\n", d.Expectation, d.Property, len(d.Path))
	for i, s := range d.Path {
		fmt.Fprintf(&sb, "  %3d. %s\n", i+1, s)
	}
	if d.Final != nil {
		fmt.Fprintf(&sb, "  final: %s\n", d.Final)
	}
	return sb.String()
}

// Report summarizes a check.
type Report struct {
	// States counts distinct states visited.
	States int
	// MaxDepth is the deepest path explored.
	MaxDepth int
	// Complete is true when the whole reachable space was explored.
	Complete    bool
	Duration    time.Duration
	Discoveries map[string]*Discovery
}

// Discovery returns the counterexample for the named property, if any.
func (r *Report) Discovery(name string) (*Discovery, bool) {
	d, ok := r.Discoveries[name]
	return d, ok
}

// Violated reports whether the named property has a counterexample.
func (r *Report) Violated(name string) bool {
	_, ok := r.Discoveries[name]
	return ok
}

// Ok reports whether no property was violated.
func (r *Report) Ok() bool {
	return len(r.Discoveries) == 0
}

// Checker explores a model's state space.
type Checker struct {
	// MaxStates bounds the number of distinct states. Zero is unbounded.
	MaxStates int
	// MaxDepth bounds path length. Zero is unbounded.
	MaxDepth int
	// StopOnViolation ends the search at the first discovery.
	StopOnViolation bool

	model  *Model
	logger log.Logger
}

// NewChecker returns an unbounded checker for m.
func NewChecker(m *Model, logger log.Logger) *Checker {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Checker{model: m, logger: log.With(logger, "component", "checker")}
}

type node struct {
	state  *State
	key    string
	depth  int
	parent *node
	step   Step
}

func (n *node) path() []Step {
	var steps []Step
	for cur := n; cur.parent != nil; cur = cur.parent {
		steps = append(steps, cur.step)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// CheckBFS explores states breadth first, so discoveries have the
// shortest possible paths.
func (c *Checker) CheckBFS(ctx context.Context) (*Report, error) {
	return c.check(ctx, "bfs", func(q []*node) (*node, []*node) {
		return q[0], q[1:]
	})
}

// CheckDFS explores states depth first.
func (c *Checker) CheckDFS(ctx context.Context) (*Report, error) {
	return c.check(ctx, "dfs", func(q []*node) (*node, []*node) {
		return q[len(q)-1], q[:len(q)-1]
	})
}

func (c *Checker) check(ctx context.Context, strategy string, pop func([]*node) (*node, []*node)) (*Report, error) {
	start := time.Now()
	m := c.model
	props := m.Properties()
	report := &Report{Discoveries: make(map[string]*Discovery)}

	level.Info(c.logger).Log("msg", "checking", "strategy", strategy, "config", m.cfg.String())

	initial := m.Init()
	root := &node{state: initial, key: string(initial.Key())}
	visited := map[string]struct{}{root.key: {}}
	queue := []*node{root}
	truncated := false

	discover := func(p Property, n *node) {
		if _, ok := report.Discoveries[p.Name]; ok {
			return
		}
		report.Discoveries[p.Name] = &Discovery{
			Property:    p.Name,
			Expectation: p.Expectation,
			Path:        n.path(),
			Final:       n.state,
		}
		level.Info(c.logger).Log("msg", "property violated", "property", p.Name, "depth", n.depth)
	}

	for len(queue) > 0 && len(report.Discoveries) < len(props) {
		if c.StopOnViolation && len(report.Discoveries) > 0 {
			break
		}
		if report.States%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if report.States > 0 {
				level.Debug(c.logger).Log("msg", "progress", "states", report.States, "queued", len(queue))
			}
		}

		var n *node
		n, queue = pop(queue)
		report.States++
		if n.depth > report.MaxDepth {
			report.MaxDepth = n.depth
		}

		for _, p := range props {
			if p.Expectation == Always && !p.Condition(m, n.state) {
				discover(p, n)
			}
		}

		if c.MaxDepth > 0 && n.depth >= c.MaxDepth {
			truncated = true
			continue
		}

		terminal := true
		for _, a := range m.Actions(n.state) {
			next, env := m.Next(n.state, a)
			key := string(next.Key())
			if key == n.key {
				continue
			}
			terminal = false
			if _, ok := visited[key]; ok {
				continue
			}
			if c.MaxStates > 0 && len(visited) >= c.MaxStates {
				truncated = true
				continue
			}
			visited[key] = struct{}{}
			queue = append(queue, &node{
				state:  next,
				key:    key,
				depth:  n.depth + 1,
				parent: n,
				step:   Step{Kind: a.Kind, Envelope: env},
			})
		}

		if terminal {
			for _, p := range props {
				if p.Expectation == Eventually && !p.Condition(m, n.state) {
					discover(p, n)
				}
			}
		}
	}

	report.Complete = len(queue) == 0 && !truncated
	report.Duration = time.Since(start)
	level.Info(c.logger).Log(
		"msg", "check done",
		"strategy", strategy,
		"states", report.States,
		"max_depth", report.MaxDepth,
		"complete", report.Complete,
		"violations", len(report.Discoveries),
		"duration", report.Duration,
	)
	return report, nil
}
