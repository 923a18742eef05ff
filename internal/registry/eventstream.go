package registry

import (
	"context"

	"github.com/openebs/moac/internal/events"
)

// Stream is a destroyable, ordered sequence of registry events: a
// synthetic catch-up burst (dependency order node -> pool -> replica ->
// nexus, each tagged events.TypeSync) followed by live events forwarded
// from the Registry's broker (spec.md §4.3).
type Stream struct {
	ch     chan events.Event
	cancel context.CancelFunc
}

// Subscribe opens a new Stream. Call Close when done to release the
// underlying broker subscription; a stream that is never closed leaks a
// subscriber channel in the broker.
func (r *Registry) Subscribe(ctx context.Context) *Stream {
	sctx, cancel := context.WithCancel(ctx)
	out := make(chan events.Event, 128)
	sub := r.Broker.Subscribe()

	go func() {
		defer close(out)
		defer r.Broker.Unsubscribe(sub)

		for _, ev := range r.catchUp() {
			select {
			case out <- ev:
			case <-sctx.Done():
				return
			}
		}

		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-sctx.Done():
					return
				}
			case <-sctx.Done():
				return
			}
		}
	}()

	return &Stream{ch: out, cancel: cancel}
}

// Events returns the channel to range over.
func (s *Stream) Events() <-chan events.Event { return s.ch }

// Close tears the stream down; it does not buffer further events.
func (s *Stream) Close() { s.cancel() }

// catchUp builds the synthetic sync burst in node -> pool -> replica ->
// nexus dependency order.
func (r *Registry) catchUp() []events.Event {
	var out []events.Event
	for _, n := range r.Nodes() {
		out = append(out, events.Event{Kind: events.KindNode, Type: events.TypeSync, Ref: n.Name})
	}
	for _, nd := range r.nodeList() {
		name := nd.Name()
		for _, p := range nd.Pools() {
			out = append(out, events.Event{Kind: events.KindPool, Type: events.TypeSync, Ref: p.Name, Node: name})
		}
	}
	for _, nd := range r.nodeList() {
		name := nd.Name()
		for _, rep := range nd.Replicas() {
			out = append(out, events.Event{Kind: events.KindReplica, Type: events.TypeSync, Ref: rep.UUID, Node: name})
		}
	}
	for _, nd := range r.nodeList() {
		name := nd.Name()
		for _, x := range nd.Nexuses() {
			out = append(out, events.Event{Kind: events.KindNexus, Type: events.TypeSync, Ref: x.UUID, Node: name})
		}
	}
	return out
}
