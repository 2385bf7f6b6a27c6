package main

import (
	"context"
	"image"
	"log"
	"sync"
	"time"

	mandel "github.com/marben/mandel_remote"
)

// backend renders the latest parameters and fans the encoded frame out to
// every frame subscriber. The last grayscale frame is cached so a colormap
// change can be applied without rendering again.
type backend struct {
	renderer mandel.Renderer
	enc      frameEncoder
	requests chan mandel.Params

	// pubMu keeps encoded frames in render order
	pubMu sync.Mutex

	m        sync.Mutex
	gray     *image.Gray
	colormap string
	sinks    map[int]chan []byte
	nextID   int
}

func newBackend(r mandel.Renderer, enc frameEncoder) *backend {
	return &backend{
		renderer: r,
		enc:      enc,
		requests: make(chan mandel.Params, 1),
		colormap: defaultColormap,
		sinks:    make(map[int]chan []byte),
	}
}

// submit queues p for rendering, replacing any request not yet started.
func (b *backend) submit(p mandel.Params) {
	for {
		select {
		case b.requests <- p:
			return
		default:
		}
		select {
		case <-b.requests:
		default:
		}
	}
}

func (b *backend) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-b.requests:
			start := time.Now()
			img, err := b.renderer.RenderFrame(ctx, p)
			if err != nil {
				log.Printf("render %+v failed: %v", p, err)
				continue
			}
			log.Printf("rendered zoom=%d iter=2^%d julia=%t in %s", p.Zoom, p.MaxIter, p.IsJulia, time.Since(start))

			b.m.Lock()
			b.gray = img
			b.m.Unlock()
			b.publish()
		}
	}
}

// setColormap switches the colour scheme and recolours the cached frame.
func (b *backend) setColormap(scheme string) {
	b.m.Lock()
	b.colormap = scheme
	cached := b.gray != nil
	b.m.Unlock()

	log.Printf("colormap: %s (%s)", scheme, paletteName(scheme))
	if cached {
		b.publish()
	}
}

func (b *backend) publish() {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.m.Lock()
	gray, scheme := b.gray, b.colormap
	b.m.Unlock()
	if gray == nil {
		return
	}

	data, err := b.enc.encode(colorize(gray, scheme))
	if err != nil {
		log.Printf("encode: %v", err)
		return
	}

	b.m.Lock()
	defer b.m.Unlock()
	for _, sink := range b.sinks {
		// latest frame wins for slow clients
		select {
		case <-sink:
		default:
		}
		sink <- data
	}
}

// subscribe returns a channel receiving encoded frames. The current frame,
// if any, is delivered right away.
func (b *backend) subscribe() (<-chan []byte, func()) {
	sink := make(chan []byte, 1)

	b.m.Lock()
	id := b.nextID
	b.nextID++
	b.sinks[id] = sink
	hasFrame := b.gray != nil
	b.m.Unlock()

	if hasFrame {
		b.publish()
	}
	return sink, func() {
		b.m.Lock()
		defer b.m.Unlock()
		delete(b.sinks, id)
	}
}
