// Package dispatch implements DispatchService: it creates, routes events
// to, and retires per-target-branch MergeServices (spec §4.3). Grounded on
// the teacher's refinery.Manager lifecycle idiom (single-writer state,
// Start/Status/session naming) generalized from managing one rig's merge
// queue to managing one MergeService per target branch, and on
// golang.org/x/sync/errgroup for the bootstrap fan-out the teacher itself
// depends on transitively via its TUI stack.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wall-e-bot/mergebot/internal/clock"
	"github.com/wall-e-bot/mergebot/internal/eventslog"
	"github.com/wall-e-bot/mergebot/internal/eventsource"
	"github.com/wall-e-bot/mergebot/internal/health"
	"github.com/wall-e-bot/mergebot/internal/hostclient"
	"github.com/wall-e-bot/mergebot/internal/merge"
	"github.com/wall-e-bot/mergebot/internal/pr"
)

// Config is the shared, branch-independent configuration every MergeService
// the dispatcher constructs is built from (spec §6 configuration table,
// minus targetBranch which varies per service).
type Config struct {
	IntegrationLabel             string
	TopPriorityLabels            []string
	RequiresAllStatusChecks      bool
	StatusChecksTimeout          time.Duration
	IdleMergeServiceCleanupDelay time.Duration
	BotUser                      int64
	BootstrapConcurrency         int
}

func (c Config) forBranch(branch string) merge.Config {
	return merge.Config{
		TargetBranch:                 branch,
		IntegrationLabel:             c.IntegrationLabel,
		TopPriorityLabels:            c.TopPriorityLabels,
		RequiresAllStatusChecks:      c.RequiresAllStatusChecks,
		StatusChecksTimeout:          c.StatusChecksTimeout,
		IdleMergeServiceCleanupDelay: c.IdleMergeServiceCleanupDelay,
		BotUser:                      c.BotUser,
	}
}

// LifecycleKind names one of the three notifications DispatchService emits
// per MergeService (spec §4.3 responsibility 3).
type LifecycleKind string

const (
	LifecycleCreated      LifecycleKind = "created"
	LifecycleStateChanged LifecycleKind = "stateChanged"
	LifecycleDestroyed    LifecycleKind = "destroyed"
)

// LifecycleEvent is one entry on the mergeServiceLifecycle stream (spec §6
// "Exposed to surrounding system").
type LifecycleEvent struct {
	Kind     LifecycleKind
	Branch   string
	Snapshot merge.StateSnapshot
}

type entry struct {
	svc     *merge.Service
	watcher *health.Watcher
	cancel  context.CancelFunc
}

// DispatchService multiplexes many MergeServices, one per target branch,
// lazily created and retired per spec §4.3/§9.
type DispatchService struct {
	cfg      Config
	client   hostclient.Client
	clk      clock.Clock
	log      *logrus.Entry
	activity *eventslog.Log
	sources  eventsource.Sources

	mu       sync.RWMutex
	services map[string]*entry

	lifecycle *eventsource.Bus[LifecycleEvent]
}

// New builds a DispatchService. Call Bootstrap then Run.
func New(cfg Config, client hostclient.Client, clk clock.Clock, log *logrus.Entry, activity *eventslog.Log, sources eventsource.Sources) *DispatchService {
	if cfg.BootstrapConcurrency <= 0 {
		cfg.BootstrapConcurrency = 8
	}
	return &DispatchService{
		cfg:       cfg,
		client:    client,
		clk:       clk,
		log:       log,
		activity:  activity,
		sources:   sources,
		services:  make(map[string]*entry),
		lifecycle: eventsource.NewBus[LifecycleEvent](),
	}
}

// Lifecycle returns a channel receiving every created/stateChanged/destroyed
// notification (spec §4.3 responsibility 3).
func (d *DispatchService) Lifecycle() <-chan LifecycleEvent {
	return d.lifecycle.Subscribe()
}

// Snapshot returns every live MergeService's current state, keyed by target
// branch (spec §6 "Exposed to surrounding system", consumed by the
// `mergebot status` CLI command).
func (d *DispatchService) Snapshot() map[string]merge.StateSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]merge.StateSnapshot, len(d.services))
	for branch, e := range d.services {
		out[branch] = e.svc.Snapshot()
	}
	return out
}

// HealthStatus returns the health verdict for branch's MergeService, or
// health.StatusOK with ok=false if no service exists for it.
func (d *DispatchService) HealthStatus(branch string) (status health.Status, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, found := d.services[branch]
	if !found {
		return health.StatusOK, false
	}
	return e.watcher.Status(), true
}

// Bootstrap implements spec §4.3 responsibility 4: fetch every open,
// integration-labeled PR, group by target branch, and construct one
// `starting` MergeService per group. The open PRs are listed with one host
// call; if it fails, Bootstrap returns that error and creates no service.
// The per-branch services are then constructed concurrently, bounded by
// cfg.BootstrapConcurrency (spec §4.3 [ADD]).
func (d *DispatchService) Bootstrap(ctx context.Context) error {
	prs, err := d.client.FetchOpenPullRequestsWithLabel(ctx, d.cfg.IntegrationLabel)
	if err != nil {
		return err
	}

	byBranch := make(map[string][]pr.PullRequest)
	for _, meta := range prs {
		byBranch[meta.Target.Name] = append(byBranch[meta.Target.Name], meta.PullRequest)
	}

	branches := make([]string, 0, len(byBranch))
	for b := range byBranch {
		branches = append(branches, b)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.BootstrapConcurrency)
	for _, branch := range branches {
		branch := branch
		initial := byBranch[branch]
		g.Go(func() error {
			d.create(gctx, branch, initial)
			return nil
		})
	}
	return g.Wait()
}

// Run consumes the event sources until ctx is cancelled, routing each
// delivery per spec §4.3's routing rules.
func (d *DispatchService) Run(ctx context.Context) {
	prChanges := d.sources.PullRequestChanges()
	statuses := d.sources.StatusEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-prChanges:
			d.routePullRequestChange(ctx, change)
		case ev := <-statuses:
			d.routeStatusEvent(ev)
		}
	}
}

func (d *DispatchService) routePullRequestChange(ctx context.Context, change eventsource.PullRequestChange) {
	branch := change.Meta.Target.Name

	d.mu.RLock()
	e, ok := d.services[branch]
	d.mu.RUnlock()

	if !ok {
		classified, classifyOK := merge.Classify(change.Meta, change.Action, d.cfg.IntegrationLabel)
		if !classifyOK || classified.Include == nil {
			return
		}
		e = d.create(ctx, branch, nil)
	}
	e.svc.SubmitPullRequestChange(change.Meta, change.Action)
}

func (d *DispatchService) routeStatusEvent(ev pr.StatusEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.services {
		snap := e.svc.Snapshot()
		if snap.Status.Metadata != nil && snap.Status.Metadata.Source.Name == ev.BranchRef {
			e.svc.SubmitStatusEvent(ev)
			return
		}
	}
}

// create lazily constructs and starts a MergeService for branch, wiring its
// health watcher and idle-cleanup timer (spec §4.3 responsibility 5).
func (d *DispatchService) create(ctx context.Context, branch string, initial []pr.PullRequest) *entry {
	d.mu.Lock()
	if existing, ok := d.services[branch]; ok {
		d.mu.Unlock()
		return existing
	}

	cfg := d.cfg.forBranch(branch)
	svc := merge.NewService(cfg, d.client, d.clk, d.log.WithField("branch", branch), d.activity, initial)
	watcher := health.New(d.clk)
	svcCtx, cancel := context.WithCancel(ctx)

	e := &entry{svc: svc, watcher: watcher, cancel: cancel}
	d.services[branch] = e
	d.mu.Unlock()

	go svc.Run(svcCtx)
	go watcher.Run(svcCtx, svc.Subscribe(), cfg.StatusChecksTimeout)
	go d.watchLifecycle(svcCtx, branch, e, svc.Subscribe())

	d.lifecycle.Publish(LifecycleEvent{Kind: LifecycleCreated, Branch: branch, Snapshot: svc.Snapshot()})
	return e
}

// watchLifecycle republishes every transition as stateChanged, and drives
// the idleMergeServiceCleanupDelay teardown timer (spec §4.3
// responsibility 5, §9).
func (d *DispatchService) watchLifecycle(ctx context.Context, branch string, e *entry, transitions <-chan merge.Transition) {
	var idleTimer clock.Timer
	stopIdle := func() {
		if idleTimer != nil {
			idleTimer.Stop()
			idleTimer = nil
		}
	}
	defer stopIdle()

	idleTimerC := func() <-chan time.Time {
		if idleTimer == nil {
			return nil
		}
		return idleTimer.C()
	}

	cfg := d.cfg.forBranch(branch)

	for {
		select {
		case <-ctx.Done():
			return

		case t, ok := <-transitions:
			if !ok {
				return
			}
			d.lifecycle.Publish(LifecycleEvent{Kind: LifecycleStateChanged, Branch: branch, Snapshot: t.Current})
			if t.Current.Status.Status == merge.StatusIdle {
				idleTimer = d.clk.After(cfg.IdleMergeServiceCleanupDelay)
			} else {
				stopIdle()
			}

		case <-idleTimerC():
			d.teardown(branch, e)
			return
		}
	}
}

func (d *DispatchService) teardown(branch string, e *entry) {
	d.mu.Lock()
	if d.services[branch] == e {
		delete(d.services, branch)
	}
	d.mu.Unlock()

	e.cancel()
	d.lifecycle.Publish(LifecycleEvent{Kind: LifecycleDestroyed, Branch: branch, Snapshot: e.svc.Snapshot()})
}
