// Package executor drives a reconciliation Plan to completion with bounded
// concurrency, retry, backpressure, and partial-failure tolerance. It
// never decides *what* to do — that is pkg/reconcile's job — only
// *how many at once* and *how hard to retry*.
//
// golang.org/x/sync/semaphore bounds the two independent concurrency
// axes (actions in flight, per-server in flight); golang.org/x/sync/errgroup
// drives the fan-out itself.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/blobclient"
	"github.com/nsyte-dev/nsyte/pkg/relay"
	"github.com/nsyte-dev/nsyte/pkg/signer"
)

// Config holds the executor's tunable concurrency and retry knobs.
type Config struct {
	Concurrency          int
	PerServerConcurrency int
	PublishQuorum        int
	ServerQuorum         int
	RetryAttempts        int
	RetryBackoff         time.Duration
	MaxRetryBackoff      time.Duration
	RequestTimeout       time.Duration
	FailFast             bool

	// LargeBodyThreshold is the soft byte-size threshold above which an
	// upload acquires the dedicated large-body slot.
	LargeBodyThreshold int64
}

// DefaultConfig returns reasonable defaults for interactive use.
func DefaultConfig() Config {
	return Config{
		Concurrency:          4,
		PerServerConcurrency: 2,
		PublishQuorum:        1,
		ServerQuorum:         1,
		RetryAttempts:        3,
		RetryBackoff:         250 * time.Millisecond,
		MaxRetryBackoff:      4 * time.Second,
		RequestTimeout:       30 * time.Second,
		FailFast:             false,
		LargeBodyThreshold:   8 << 20,
	}
}

// BlobSource resolves a content hash to its bytes. The Reconciler's Plan
// carries hashes, not bytes: each upload's body is held in a single
// contiguous buffer whose lifetime ends when its retry budget is
// exhausted or success is reported, so loading is deferred to the
// executor, one action at a time, rather than held for the whole plan.
type BlobSource func(hash string) ([]byte, error)

// RelayPublisher is the subset of *relay.Pool the executor needs to
// broadcast manifest events. Defined as an interface so tests can supply a
// fake without opening real WebSocket connections.
type RelayPublisher interface {
	Publish(ctx context.Context, relays []string, ev api.Event) []relay.PublishResult
}

// Executor runs a Plan against a fan-out of blob-server backends and
// write relays, signing manifest and authorisation events along the way.
type Executor struct {
	servers     map[string]blobclient.Backend
	pool        RelayPublisher
	writeRelays []string
	signer      signer.Signer
	cfg         Config
}

// New constructs an Executor. servers maps a blob-server identifier (used
// in Plan.Action.Servers) to the backend that talks to it; writeRelays is
// the set of relays manifest events are broadcast to.
func New(servers map[string]blobclient.Backend, pool RelayPublisher, writeRelays []string, sgnr signer.Signer, cfg Config) *Executor {
	return &Executor{servers: servers, pool: pool, writeRelays: writeRelays, signer: sgnr, cfg: cfg}
}

// Run executes plan to completion and returns the aggregate Report.
// Cancelling ctx (or its expiry) drains in-flight actions
// cooperatively; Report.Cancelled reports whether that happened.
func (e *Executor) Run(ctx context.Context, plan api.Plan, blobs BlobSource) (*api.Report, error) {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var uploads, manifests, deletes []api.Action
	for _, a := range plan.Actions {
		switch a.Kind {
		case api.ActionUploadBlob:
			uploads = append(uploads, a)
		case api.ActionPublishManifest:
			manifests = append(manifests, a)
		default:
			deletes = append(deletes, a)
		}
	}

	globalSem := semaphore.NewWeighted(int64(atLeastOne(e.cfg.Concurrency)))
	perServerSem := make(map[string]*semaphore.Weighted, len(e.servers))
	for s := range e.servers {
		perServerSem[s] = semaphore.NewWeighted(int64(atLeastOne(e.cfg.PerServerConcurrency)))
	}
	largeSem := semaphore.NewWeighted(1)

	var mu sync.Mutex
	report := &api.Report{}
	addOutcome := func(o api.ActionOutcome, isUpload, isManifest bool) {
		mu.Lock()
		defer mu.Unlock()
		report.Outcomes = append(report.Outcomes, o)
		if isUpload && o.QuorumMet {
			report.BlobsUploaded++
		}
		if isManifest && o.QuorumMet {
			report.ManifestsPublish++
		}
	}

	var fatalOnce sync.Once
	failFast := func() {
		if e.cfg.FailFast {
			fatalOnce.Do(cancel)
		}
	}

	// hashReady[h] closes once every upload action for hash h has
	// finished; hashOK[h] records whether that hash reached server
	// quorum. A manifest whose hash never appears among uploads (the
	// blob was already present everywhere needed) proceeds immediately.
	hashReady := make(map[string]chan struct{})
	for _, u := range uploads {
		if _, ok := hashReady[u.Hash]; !ok {
			hashReady[u.Hash] = make(chan struct{})
		}
	}
	var hashMu sync.Mutex
	hashOK := make(map[string]bool)

	var uploadGroup errgroup.Group
	for _, action := range uploads {
		action := action
		uploadGroup.Go(func() error {
			defer close(hashReady[action.Hash])

			if err := globalSem.Acquire(runCtx, 1); err != nil {
				addOutcome(cancelledOutcome(action, err), true, false)
				hashMu.Lock()
				hashOK[action.Hash] = false
				hashMu.Unlock()
				return nil
			}
			outcome, bytesSent := e.runUpload(runCtx, action, blobs, perServerSem, largeSem)
			globalSem.Release(1)
			if outcome.FatalError != nil || (!outcome.QuorumMet && len(outcome.Failed) > 0) {
				failFast()
			}
			addOutcome(outcome, true, false)
			mu.Lock()
			report.BytesSent += bytesSent
			mu.Unlock()
			hashMu.Lock()
			hashOK[action.Hash] = outcome.QuorumMet
			hashMu.Unlock()
			return nil
		})
	}

	var manifestGroup errgroup.Group
	for _, action := range manifests {
		action := action
		manifestGroup.Go(func() error {
			if ch, ok := hashReady[action.Hash]; ok {
				select {
				case <-ch:
				case <-runCtx.Done():
					addOutcome(cancelledOutcome(action, runCtx.Err()), false, true)
					return nil
				}
				hashMu.Lock()
				ok := hashOK[action.Hash]
				hashMu.Unlock()
				if !ok {
					addOutcome(api.ActionOutcome{
						Action:     action,
						FatalError: fmt.Errorf("executor: manifest %s blocked: blob %s did not reach server quorum", action.Path, action.Hash),
					}, false, true)
					return nil
				}
			}

			if err := globalSem.Acquire(runCtx, 1); err != nil {
				addOutcome(cancelledOutcome(action, err), false, true)
				return nil
			}
			outcome := e.runManifest(runCtx, action)
			globalSem.Release(1)
			if !outcome.QuorumMet {
				failFast()
			}
			addOutcome(outcome, false, true)
			return nil
		})
	}

	_ = uploadGroup.Wait()
	_ = manifestGroup.Wait()

	// Deletes run only after every publish has completed.
	var deleteGroup errgroup.Group
	for _, action := range deletes {
		action := action
		deleteGroup.Go(func() error {
			if err := globalSem.Acquire(runCtx, 1); err != nil {
				addOutcome(cancelledOutcome(action, err), false, false)
				return nil
			}
			outcome := e.runDelete(runCtx, action, perServerSem)
			globalSem.Release(1)
			addOutcome(outcome, false, false)
			return nil
		})
	}
	_ = deleteGroup.Wait()

	sort.Slice(report.Outcomes, func(i, j int) bool {
		a, b := report.Outcomes[i].Action, report.Outcomes[j].Action
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Hash != b.Hash {
			return a.Hash < b.Hash
		}
		return a.Path < b.Path
	})

	report.Duration = time.Since(start)
	report.Cancelled = ctx.Err() != nil
	return report, nil
}

func cancelledOutcome(action api.Action, err error) api.ActionOutcome {
	return api.ActionOutcome{Action: action, FatalError: api.NewError(api.ErrKindCancelled, "executor.run", err)}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// sleepBackoff waits the current backoff duration, advancing it
// (exponential, capped) for the next attempt. It returns false if ctx was
// cancelled first.
func sleepBackoff(ctx context.Context, backoff *time.Duration, cap time.Duration) bool {
	timer := time.NewTimer(*backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		next := *backoff * 2
		if next > cap {
			next = cap
		}
		*backoff = next
		return true
	case <-ctx.Done():
		return false
	}
}
