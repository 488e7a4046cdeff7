// CLAUDE:SUMMARY Fallback traversal engine: breadth-first cycles over a lazily expanded target arena, placement, and the run-forever loop.
// Package traversal drives the agent: one cycle resolves targets starting at
// the root, picks a pixel, places it, and falls back to secondary targets
// breadth-first when a target is complete.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hazyhaar/placebot/canvas"
	"github.com/hazyhaar/placebot/palette"
	"github.com/hazyhaar/placebot/selector"
	"github.com/hazyhaar/placebot/target"
)

// CanvasSource fetches a full canvas snapshot into dst.
type CanvasSource interface {
	FetchCanvas(ctx context.Context, dst *canvas.Canvas) error
}

// Placer writes one pixel and returns the server-mandated cooldown.
type Placer interface {
	Place(ctx context.Context, x, y int, color palette.Index) (time.Duration, error)
}

// TargetResolver resolves a reference, reusing prev when unchanged.
// *target.Resolver satisfies it.
type TargetResolver interface {
	Resolve(ctx context.Context, ref string, prev *target.Target) (*target.Target, error)
}

// RetryAfter is implemented by errors carrying a server-mandated cooldown,
// such as a rate-limited placement.
type RetryAfter interface {
	RetryAfter() time.Duration
}

// Recorder receives every cycle outcome. Implementations must not block for
// long; errors are logged and ignored.
type Recorder interface {
	RecordCycle(ctx context.Context, o *Outcome) error
}

// Config tunes the engine.
type Config struct {
	// Root is the reference of the initial target descriptor.
	Root string
	// IdleInterval is slept after a cycle in which every target was
	// complete. Default: 10s.
	IdleInterval time.Duration
	// FailureBackoff is slept after a recoverable failure. Default: 10s.
	FailureBackoff time.Duration
	// CanvasWidth and CanvasHeight size the snapshot buffer.
	// Default: canvas.DefaultWidth x canvas.DefaultHeight.
	CanvasWidth, CanvasHeight int
}

func (c *Config) defaults() {
	if c.IdleInterval <= 0 {
		c.IdleInterval = 10 * time.Second
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = 10 * time.Second
	}
	if c.CanvasWidth <= 0 {
		c.CanvasWidth = canvas.DefaultWidth
	}
	if c.CanvasHeight <= 0 {
		c.CanvasHeight = canvas.DefaultHeight
	}
}

// node is one arena entry. Its target is replaced wholesale, never edited.
type node struct {
	ref      string
	target   *target.Target
	children []string
	expanded bool
}

// Engine owns the target arena and the canvas buffer. RunCycle and
// RunForever must be called from a single goroutine; Snapshot may be called
// concurrently.
type Engine struct {
	config   Config
	resolver TargetResolver
	canvas   CanvasSource
	placer   Placer
	rnd      selector.Source
	logger   *slog.Logger
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error

	board *canvas.Canvas
	nodes map[string]*node

	mu   sync.Mutex
	last *Outcome
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithRand sets the random source used to pick pixels.
func WithRand(r selector.Source) Option { return func(e *Engine) { e.rnd = r } }

// WithRecorder registers a cycle outcome recorder.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithSleep replaces the context-aware sleep used between cycles.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// New creates an Engine.
func New(cfg Config, resolver TargetResolver, source CanvasSource, placer Placer, opts ...Option) *Engine {
	cfg.defaults()
	e := &Engine{
		config:   cfg,
		resolver: resolver,
		canvas:   source,
		placer:   placer,
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:   slog.Default(),
		sleep:    sleepCtx,
		board:    canvas.New(cfg.CanvasWidth, cfg.CanvasHeight),
		nodes:    make(map[string]*node),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunForever runs cycles until a fatal error or ctx cancellation.
// It returns the fatal error, or ctx.Err().
func (e *Engine) RunForever(ctx context.Context) error {
	for {
		o := e.RunCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var wait time.Duration
		switch o.Kind {
		case Fatal:
			e.logger.Error("traversal: fatal, stopping", "error", o.Err)
			return o.Err
		case Success:
			wait = o.Wait
			e.logger.Info("traversal: pixel placed, sleeping", "wait", wait)
		case Exhausted:
			wait = e.config.IdleInterval
			e.logger.Info("traversal: every target is complete, sleeping", "wait", wait)
		case HardFailure:
			wait = e.config.FailureBackoff
			var ra RetryAfter
			if errors.As(o.Err, &ra) && ra.RetryAfter() > wait {
				wait = ra.RetryAfter()
			}
			e.logger.Warn("traversal: cycle failed, backing off", "error", o.Err, "wait", wait)
		}
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RunCycle performs one breadth-first traversal from the root and returns
// its outcome. Nodes are marked visited when enqueued, so a reference listed
// by several targets is visited once per cycle.
func (e *Engine) RunCycle(ctx context.Context) *Outcome {
	o := e.runCycle(ctx)
	o.Finished = time.Now()
	e.prune()

	e.mu.Lock()
	e.last = o
	e.mu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.RecordCycle(ctx, o); err != nil {
			e.logger.Warn("traversal: record cycle", "error", err)
		}
	}
	return o
}

func (e *Engine) runCycle(ctx context.Context) *Outcome {
	o := &Outcome{Started: time.Now()}
	queue := []string{e.config.Root}
	visited := map[string]bool{e.config.Root: true}
	boardFresh := false

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		o.Visited = append(o.Visited, ref)
		n := e.node(ref)

		t, err := e.resolver.Resolve(ctx, ref, n.target)
		if err != nil {
			return o.fail(ref, err)
		}
		if t != n.target {
			n.target = t
			n.children = nil
			n.expanded = false
		}

		if !boardFresh {
			if err := e.canvas.FetchCanvas(ctx, e.board); err != nil {
				return o.fail(ref, fmt.Errorf("fetch canvas: %w", err))
			}
			boardFresh = true
		}
		if !e.board.Contains(t.X, t.Y, t.Width, t.Height) {
			return o.fail(ref, fmt.Errorf("%w: %dx%d at (%d,%d) exceeds %dx%d canvas",
				target.ErrFormat, t.Width, t.Height, t.X, t.Y, e.board.Width(), e.board.Height()))
		}

		res := selector.Select(e.board, t, e.rnd)
		o.Ref = ref
		o.Stats, o.Diffed = res.Stats, true
		e.logger.Info("traversal: progress", "ref", ref,
			"done", res.Stats.Done(), "solid", res.Stats.Solid,
			"percent", fmt.Sprintf("%.1f", res.Stats.Percent()))

		if res.Kind == selector.Exhausted {
			for _, child := range e.expand(n) {
				if visited[child] {
					continue
				}
				visited[child] = true
				queue = append(queue, child)
			}
			continue
		}

		o.Pick, o.Picked = res.Pick, true
		e.logger.Info("traversal: placing pixel", "ref", ref,
			"x", res.Pick.X, "y", res.Pick.Y, "color", res.Pick.Color)
		wait, err := e.placer.Place(ctx, res.Pick.X, res.Pick.Y, res.Pick.Color)
		if err != nil {
			return o.fail(ref, fmt.Errorf("place (%d,%d): %w", res.Pick.X, res.Pick.Y, err))
		}
		o.Kind = Success
		o.Wait = wait
		return o
	}

	o.Kind = Exhausted
	return o
}

// node returns the arena entry for ref, creating a placeholder if needed.
func (e *Engine) node(ref string) *node {
	n, ok := e.nodes[ref]
	if !ok {
		n = &node{ref: ref}
		e.nodes[ref] = n
	}
	return n
}

// expand materializes n's children from its target's fallback list.
// Children are placeholders; they are resolved when dequeued.
func (e *Engine) expand(n *node) []string {
	if !n.expanded {
		n.children = append([]string(nil), n.target.Descriptor.Fallbacks...)
		for _, ref := range n.children {
			e.node(ref)
		}
		n.expanded = true
	}
	return n.children
}

// prune drops arena entries no longer reachable from the root through
// materialized children.
func (e *Engine) prune() {
	reachable := map[string]bool{e.config.Root: true}
	stack := []string{e.config.Root}
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := e.nodes[ref]
		if !ok {
			continue
		}
		for _, c := range n.children {
			if !reachable[c] {
				reachable[c] = true
				stack = append(stack, c)
			}
		}
	}
	for ref := range e.nodes {
		if !reachable[ref] {
			delete(e.nodes, ref)
		}
	}
}

// Snapshot returns the outcome of the last completed cycle, or nil.
func (e *Engine) Snapshot() *Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	cp := *e.last
	cp.Visited = append([]string(nil), e.last.Visited...)
	return &cp
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
