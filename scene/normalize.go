package scene

import (
	"fmt"
	"sync"
	"time"
)

// legacyNotices tracks which deprecated verb spellings have already been
// reported, process-wide, so each produces a single advisory.
var legacyNotices sync.Map

// normalize reduces a callback response to its canonical form: deprecated
// spellings produce a one-time advisory, a requested graph push is
// performed synchronously so the publication is visible before any reply
// escapes, and the directive set is reduced to at most one of timeout or
// continuation, continuation winning as the more specific instruction.
// Stop responses pass through untouched.
func (a *Actor) normalize(r Response) (Response, error) {
	if r.legacy != "" {
		if _, seen := legacyNotices.LoadOrStore(r.legacy, struct{}{}); !seen {
			a.log.Warn("deprecated callback verb spelling accepted",
				"scene", a.ref, "spelling", r.legacy, "canonical", r.verb.String())
		}
	}

	if r.push != nil {
		if err := a.publish(r.push.g, r.push.sub); err != nil {
			return r, fmt.Errorf("scene %s: publish: %w", a.ref, err)
		}
		r.push = nil
	}

	if r.hasToken && r.hasTimeout {
		r.hasTimeout = false
	}

	if r.hibernate {
		a.log.Debug("hibernate hint ignored", "scene", a.ref)
	}

	return r, nil
}

// applyDirective acts on the reduced directive of a normalized response:
// run the continuation immediately, or arm the one-shot timeout timer.
// It returns a Stop response produced by a continuation, if any.
func (a *Actor) applyDirective(r Response) (Response, error) {
	for r.hasToken {
		next, err := a.runContinue(r.token)
		if err != nil {
			return next, err
		}
		if next.verb == verbStop {
			return next, nil
		}
		r = next
	}

	if r.hasTimeout {
		a.armTimer(r.timeout)
	}

	return r, nil
}

// runContinue delivers a continuation token to the module before any other
// mailbox message is read.
func (a *Actor) runContinue(token any) (Response, error) {
	h, ok := a.module.(ContinueHandler)
	if !ok {
		return Response{}, fmt.Errorf("scene %s: continuation %v: %w", a.ref, token, ErrNotHandled)
	}

	resp := h.HandleContinue(token)
	resp, err := a.normalize(resp)
	if err != nil {
		return resp, err
	}

	switch resp.verb {
	case verbNoReply, verbStop:
		return resp, nil
	default:
		return resp, fmt.Errorf("scene %s: continuation returned %s", a.ref, resp.verb)
	}
}

// armTimer starts the single pending timer. Arrival of any other message
// cancels it; a stale expiry is discarded by generation.
func (a *Actor) armTimer(d time.Duration) {
	a.cancelTimer()
	a.timerGen++
	gen := a.timerGen
	a.timer = time.AfterFunc(d, func() {
		if err := a.enqueue(envelope{kind: kindTimeout, gen: gen}); err != nil {
			a.log.Debug("timeout signal dropped", "scene", a.ref, "err", err)
		}
	})
}

func (a *Actor) cancelTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
		a.timerGen++
	}
}
