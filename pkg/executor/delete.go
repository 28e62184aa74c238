package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// runDelete handles DeleteBlob and DeleteManifest actions, only ever
// invoked after every upload and publish has completed.
func (e *Executor) runDelete(ctx context.Context, action api.Action, perServerSem map[string]*semaphore.Weighted) api.ActionOutcome {
	switch action.Kind {
	case api.ActionDeleteBlob:
		return e.runDeleteBlob(ctx, action, perServerSem)
	case api.ActionDeleteManifest:
		return e.runDeleteManifest(action)
	default:
		return api.ActionOutcome{Action: action, FatalError: fmt.Errorf("executor: unknown delete action kind %d", action.Kind)}
	}
}

func (e *Executor) runDeleteBlob(ctx context.Context, action api.Action, perServerSem map[string]*semaphore.Weighted) api.ActionOutcome {
	start := time.Now()

	type serverResult struct {
		server string
		err    error
	}
	results := make([]serverResult, len(action.Servers))
	var wg sync.WaitGroup
	for i, server := range action.Servers {
		i, server := i, server
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem := perServerSem[server]
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					results[i] = serverResult{server: server, err: api.NewError(api.ErrKindCancelled, "executor.delete", err)}
					return
				}
				defer sem.Release(1)
			}
			err := e.deleteWithRetry(ctx, server, action.Hash)
			results[i] = serverResult{server: server, err: err}
		}()
	}
	wg.Wait()

	var succeeded []string
	failed := map[string]error{}
	for _, r := range results {
		if r.err == nil {
			succeeded = append(succeeded, r.server)
		} else {
			failed[r.server] = r.err
		}
	}
	sort.Strings(succeeded)

	return api.ActionOutcome{
		Action:    action,
		Succeeded: succeeded,
		Failed:    failed,
		Attempts:  1,
		Elapsed:   time.Since(start),
		QuorumMet: len(succeeded) >= e.cfg.ServerQuorum,
	}
}

func (e *Executor) deleteWithRetry(ctx context.Context, server, hash string) error {
	backend := e.servers[server]
	if backend == nil {
		return api.NewError(api.ErrKindMalformed, "executor.delete", unknownServerErr(server))
	}
	attempt := 0
	authRetried := false
	backoff := e.cfg.RetryBackoff
	for {
		if err := ctx.Err(); err != nil {
			return api.NewError(api.ErrKindCancelled, "executor.delete", err)
		}
		attempt++
		auth, err := e.signBlobAuth(ctx, "delete", hash)
		if err != nil {
			return err
		}
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		delErr := backend.Delete(opCtx, hash, auth)
		cancel()
		if delErr == nil {
			return nil
		}
		switch api.KindOf(delErr) {
		case api.ErrKindAuthRequired:
			if authRetried {
				return delErr
			}
			authRetried = true
			attempt--
			continue
		case api.ErrKindTransient:
			if attempt >= e.cfg.RetryAttempts+1 {
				return delErr
			}
			if !sleepBackoff(ctx, &backoff, e.cfg.MaxRetryBackoff) {
				return api.NewError(api.ErrKindCancelled, "executor.delete", ctx.Err())
			}
			continue
		default:
			return delErr
		}
	}
}

// runDeleteManifest is a documented no-op: the relay wire protocol has
// no delete primitive for an already-published event, so a superseded
// manifest is left to the "latest by creation timestamp" rule rather
// than chasing a retraction across every relay. See DESIGN.md's Open
// Question ledger.
func (e *Executor) runDeleteManifest(action api.Action) api.ActionOutcome {
	return api.ActionOutcome{
		Action:    action,
		Succeeded: nil,
		Attempts:  0,
		QuorumMet: true,
	}
}

func unknownServerErr(server string) error {
	return fmt.Errorf("executor: no backend configured for server %q", server)
}

func notAcceptedErr(message string) error {
	if message == "" {
		return fmt.Errorf("executor: relay declined the event")
	}
	return fmt.Errorf("executor: relay declined the event: %s", message)
}
