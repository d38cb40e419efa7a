package socket

import (
	"errors"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/queue"
)

// ErrRejected is recorded on sessions dropped by a RejectAdapter.
var ErrRejected = errors.New("connection rejected by policy")

// RejectAdapter never connects. It disconnects after a delay, which keeps
// clients that retry immediately from spinning.
type RejectAdapter struct {
	adapterBase
	exec  queue.Executor
	delay time.Duration
	task  queue.Task
}

// NewRejectAdapter creates a reject adapter.
func NewRejectAdapter(exec queue.Executor, delay time.Duration, observer Observer) *RejectAdapter {
	a := &RejectAdapter{exec: exec, delay: delay}
	a.init(a, "reject", nil, nil, observer)
	return a
}

// Open implements Adapter.
func (a *RejectAdapter) Open(session *ConnectSession) {
	if !a.open(session) {
		return
	}
	a.task = a.exec.After(a.delay, func() {
		a.Disconnect(ErrRejected)
	})
}

// Disconnect implements Socket.
func (a *RejectAdapter) Disconnect(err error) {
	if a.cancelled {
		return
	}
	a.adapterBase.Disconnect(err)
	a.finish()
}

// ForceDisconnect implements Socket.
func (a *RejectAdapter) ForceDisconnect(err error) {
	if a.cancelled {
		return
	}
	a.adapterBase.ForceDisconnect(err)
	a.finish()
}

func (a *RejectAdapter) finish() {
	if a.task != nil {
		a.task.Cancel()
	}
	a.exec.Async(a.disconnected)
}
