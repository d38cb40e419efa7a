package socket_test

import (
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

type recordingDelegate struct {
	sessions     []*socket.ConnectSession
	ready        []socket.Socket
	reads        [][]byte
	writes       [][]byte
	connected    []socket.Adapter
	disconnected []socket.Socket
	updated      []socket.Adapter
}

func (d *recordingDelegate) DidConnectAdapter(a socket.Adapter) {
	d.connected = append(d.connected, a)
}

func (d *recordingDelegate) DidDisconnect(s socket.Socket) {
	d.disconnected = append(d.disconnected, s)
}

func (d *recordingDelegate) DidRead(data []byte, _ socket.Socket) {
	d.reads = append(d.reads, data)
}

func (d *recordingDelegate) DidWrite(data []byte, _ socket.Socket) {
	d.writes = append(d.writes, data)
}

func (d *recordingDelegate) DidBecomeReadyToForward(s socket.Socket) {
	d.ready = append(d.ready, s)
}

func (d *recordingDelegate) DidReceiveSession(session *socket.ConnectSession, _ socket.ProxySocket) {
	d.sessions = append(d.sessions, session)
}

func (d *recordingDelegate) UpdateAdapter(a socket.Adapter) {
	d.updated = append(d.updated, a)
}

type recordingObserver struct {
	events []socket.Event
}

func (o *recordingObserver) OnSocketEvent(e socket.Event) {
	o.events = append(o.events, e)
}

func (o *recordingObserver) count(kind socket.EventKind) int {
	n := 0
	for _, e := range o.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
