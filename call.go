// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import "time"

// Call is an emitted request awaiting its response. Payload and Err are set
// once Done is closed.
type Call struct {
	ID      string
	Name    string
	Payload any
	Err     error

	cb    Callback
	timer *time.Timer
	done  chan struct{}
}

// Done is closed when the call completes.
func (call *Call) Done() <-chan struct{} {
	return call.done
}

// Result blocks until the call completes.
func (call *Call) Result() (any, error) {
	<-call.done
	return call.Payload, call.Err
}

func (call *Call) stopTimer() {
	if call.timer != nil {
		call.timer.Stop()
	}
}

// finish must be called at most once; the pending map guarantees it.
func (call *Call) finish(payload any, err error) {
	call.Payload = payload
	call.Err = err
	close(call.done)
	if call.cb != nil {
		call.cb(payload, err)
	}
}
