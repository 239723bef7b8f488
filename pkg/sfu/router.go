// Package sfu provides the selective-forwarding primitives used for
// simulcast: sources keyed by their RID layer feed a router that
// forwards exactly one selected layer to every subscribed sink,
// switchable at runtime without a decoder in the path.
package sfu

import (
	"context"
	"sync"

	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

type (
	// SourceStream delivers packets of one simulcast layer.
	SourceStream <-chan *rtp.Packet
	// SinkStream receives the forwarded packets.
	SinkStream chan<- *rtp.Packet
)

// Router forwards one selected simulcast layer to all sinks.
type Router struct {
	mu sync.Mutex

	cancel  context.CancelFunc
	ctx     context.Context
	packets chan layerPacket

	layers        map[string]*layerReader
	selectedLayer string
	sinks         map[SinkStream]struct{}
}

type layerPacket struct {
	rid    string
	packet *rtp.Packet
}

type layerReader struct {
	cancel context.CancelFunc
}

// NewRouter returns a running router.
func NewRouter() *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		cancel:  cancel,
		ctx:     ctx,
		packets: make(chan layerPacket, 64),
		layers:  map[string]*layerReader{},
		sinks:   map[SinkStream]struct{}{},
	}
	go r.runLoop()
	return r
}

// AddLayer registers one simulcast layer under its RID. The first
// layer added becomes the selected one.
func (r *Router) AddLayer(rid string, source SourceStream) {
	ctx, cancel := context.WithCancel(r.ctx)

	r.mu.Lock()
	if old, ok := r.layers[rid]; ok {
		old.cancel()
	}
	r.layers[rid] = &layerReader{cancel: cancel}
	if r.selectedLayer == "" {
		r.selectedLayer = rid
	}
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case pkt, ok := <-source:
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					return
				case r.packets <- layerPacket{rid: rid, packet: pkt}:
				}
			}
		}
	}()
}

// RemoveLayer stops forwarding a layer.
func (r *Router) RemoveLayer(rid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.layers[rid]; ok {
		l.cancel()
		delete(r.layers, rid)
	}
	if r.selectedLayer == rid {
		r.selectedLayer = ""
		for other := range r.layers {
			r.selectedLayer = other
			break
		}
	}
}

// SelectLayer switches the forwarded layer. The switch takes effect on
// the next packet; receivers request a keyframe out of band.
func (r *Router) SelectLayer(rid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layers[rid]; !ok {
		return false
	}
	r.selectedLayer = rid
	return true
}

// SelectedLayer returns the currently forwarded RID.
func (r *Router) SelectedLayer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectedLayer
}

// AddSink subscribes a recipient.
func (r *Router) AddSink(sink SinkStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[sink] = struct{}{}
}

// RemoveSink unsubscribes a recipient.
func (r *Router) RemoveSink(sink SinkStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, sink)
}

func (r *Router) runLoop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case lp := <-r.packets:
			r.mu.Lock()
			forward := lp.rid == r.selectedLayer
			var sinks []SinkStream
			if forward {
				sinks = make([]SinkStream, 0, len(r.sinks))
				for sink := range r.sinks {
					sinks = append(sinks, sink)
				}
			}
			r.mu.Unlock()

			for _, sink := range sinks {
				clone := lp.packet.Clone()
				select {
				case <-r.ctx.Done():
					return
				case sink <- clone:
				}
			}
		}
	}
}

// Shutdown stops the router and all layer readers.
func (r *Router) Shutdown() {
	r.cancel()
}
