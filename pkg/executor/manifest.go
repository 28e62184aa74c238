package executor

import (
	"context"
	"sort"
	"time"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/event"
)

// runManifest signs and broadcasts one PublishManifest action to every
// write relay, retrying relays that errored transiently, until either
// publish_quorum distinct relays accept it or the retry budget is spent.
func (e *Executor) runManifest(ctx context.Context, action api.Action) api.ActionOutcome {
	start := time.Now()
	draft := event.ManifestDraft(action.Path, action.Hash, action.Mime, action.Size, time.Now().Unix())

	succeeded := map[string]bool{}
	failed := map[string]error{}
	pending := append([]string(nil), e.writeRelays...)
	attempts := 0
	backoff := e.cfg.RetryBackoff

	for {
		if err := ctx.Err(); err != nil {
			return api.ActionOutcome{
				Action:     action,
				FatalError: api.NewError(api.ErrKindCancelled, "executor.publish", err),
				Attempts:   attempts,
				Elapsed:    time.Since(start),
			}
		}
		attempts++

		ev, err := e.signer.SignEvent(ctx, draft)
		if err != nil {
			return api.ActionOutcome{
				Action:     action,
				FatalError: err,
				Attempts:   attempts,
				Elapsed:    time.Since(start),
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		results := e.pool.Publish(opCtx, pending, ev)
		cancel()

		var retry []string
		for _, r := range results {
			switch {
			case r.Err == nil && r.Accepted:
				succeeded[r.URL] = true
				delete(failed, r.URL)
			case r.Err != nil:
				failed[r.URL] = r.Err
				retry = append(retry, r.URL)
			default:
				// Relay replied OK=false: a fatal rejection for that relay,
				// not retried. The same rule that treats a 4xx other than
				// 401/402 as fatal for an (action, target) pair applies
				// here to a relay's explicit rejection.
				failed[r.URL] = notAcceptedErr(r.Message)
			}
		}

		if len(succeeded) >= e.cfg.PublishQuorum || len(retry) == 0 {
			break
		}
		if attempts >= e.cfg.RetryAttempts+1 {
			break
		}
		if !sleepBackoff(ctx, &backoff, e.cfg.MaxRetryBackoff) {
			break
		}
		pending = retry
	}

	var succeededList []string
	for url := range succeeded {
		succeededList = append(succeededList, url)
	}
	sort.Strings(succeededList)

	return api.ActionOutcome{
		Action:    action,
		Succeeded: succeededList,
		Failed:    failed,
		Attempts:  attempts,
		Elapsed:   time.Since(start),
		QuorumMet: len(succeeded) >= e.cfg.PublishQuorum,
	}
}
