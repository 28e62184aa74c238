package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/event"
)

// runUpload drives one UploadBlob action to completion across every
// target server, returning its outcome and the number of bytes actually
// transmitted (for the aggregate Report.BytesSent counter).
func (e *Executor) runUpload(ctx context.Context, action api.Action, blobs BlobSource, perServerSem map[string]*semaphore.Weighted, largeSem *semaphore.Weighted) (api.ActionOutcome, int64) {
	start := time.Now()
	body, err := blobs(action.Hash)
	if err != nil {
		return api.ActionOutcome{
			Action:     action,
			FatalError: api.NewError(api.ErrKindMalformed, "executor.upload", err),
			Elapsed:    time.Since(start),
		}, 0
	}

	large := int64(len(body)) > e.cfg.LargeBodyThreshold
	if large {
		if err := largeSem.Acquire(ctx, 1); err != nil {
			return api.ActionOutcome{
				Action:     action,
				FatalError: api.NewError(api.ErrKindCancelled, "executor.upload", err),
				Elapsed:    time.Since(start),
			}, 0
		}
		defer largeSem.Release(1)
	}

	type serverResult struct {
		server   string
		attempts int
		err      error
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
					results[i] = serverResult{server: server, err: api.NewError(api.ErrKindCancelled, "executor.upload", err)}
					return
				}
				defer sem.Release(1)
			}
			attempts, err := e.putWithRetry(ctx, server, action.Hash, body)
			results[i] = serverResult{server: server, attempts: attempts, err: err}
		}()
	}
	wg.Wait()

	var succeeded []string
	failed := map[string]error{}
	maxAttempts := 0
	for _, r := range results {
		if r.attempts > maxAttempts {
			maxAttempts = r.attempts
		}
		if r.err == nil {
			succeeded = append(succeeded, r.server)
		} else {
			failed[r.server] = r.err
		}
	}
	sort.Strings(succeeded)

	quorumMet := len(succeeded) >= e.cfg.ServerQuorum
	bytesSent := int64(len(succeeded)) * int64(len(body))
	return api.ActionOutcome{
		Action:    action,
		Succeeded: succeeded,
		Failed:    failed,
		Attempts:  maxAttempts,
		Elapsed:   time.Since(start),
		QuorumMet: quorumMet,
	}, bytesSent
}

// putWithRetry uploads body to server, retrying transient failures up to
// cfg.RetryAttempts times with exponential backoff and, on a single
// 401/402 response, reattaching a fresh authorisation event once without
// counting against the retry budget.
func (e *Executor) putWithRetry(ctx context.Context, server, hash string, body []byte) (int, error) {
	backend := e.servers[server]
	if backend == nil {
		return 0, api.NewError(api.ErrKindMalformed, "executor.upload", unknownServerErr(server))
	}

	if present, err := backend.Head(ctx, hash); err == nil && present {
		return 1, nil
	}

	attempt := 0
	authRetried := false
	backoff := e.cfg.RetryBackoff
	for {
		if err := ctx.Err(); err != nil {
			return attempt, api.NewError(api.ErrKindCancelled, "executor.upload", err)
		}
		attempt++
		auth, err := e.signBlobAuth(ctx, "upload", hash)
		if err != nil {
			return attempt, err
		}
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		putErr := backend.Put(opCtx, body, auth)
		cancel()
		if putErr == nil {
			return attempt, nil
		}
		switch api.KindOf(putErr) {
		case api.ErrKindAuthRequired:
			if authRetried {
				return attempt, putErr
			}
			authRetried = true
			attempt-- // : the auth retry doesn't count against retry_attempts
			continue
		case api.ErrKindTransient:
			if attempt >= e.cfg.RetryAttempts+1 {
				return attempt, putErr
			}
			if !sleepBackoff(ctx, &backoff, e.cfg.MaxRetryBackoff) {
				return attempt, api.NewError(api.ErrKindCancelled, "executor.upload", ctx.Err())
			}
			continue
		default:
			return attempt, putErr
		}
	}
}

// signBlobAuth builds and signs a fresh upload/delete authorisation event
// expiring five minutes from now, well within the one-hour ceiling blob
// servers enforce on the expiration tag.
func (e *Executor) signBlobAuth(ctx context.Context, action, hash string) (api.Event, error) {
	now := time.Now()
	draft := event.BlobAuthDraft(action, hash, now.Add(5*time.Minute).Unix(), now.Unix())
	return e.signer.SignEvent(ctx, draft)
}
