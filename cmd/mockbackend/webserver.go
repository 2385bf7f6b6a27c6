package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	mandel "github.com/marben/mandel_remote"
)

const frameWriteTimeout = 5 * time.Second

// webServer serves the three backend endpoints on port.
func webServer(b *backend, port int) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newMux(b),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("listening on ws://localhost:%d/{params,frames,gesture}", port)
	return srv
}

func newMux(b *backend) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/params", paramsHandler(b))
	mux.HandleFunc("/frames", framesHandler(b))
	mux.HandleFunc("/gesture", gestureHandler())
	return mux
}

func accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: tighten in prod
	})
	if err != nil {
		log.Println(err)
		return nil, false
	}
	return c, true
}

// paramsHandler feeds every parameter message into the render queue.
func paramsHandler(b *backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := accept(w, r)
		if !ok {
			return
		}
		defer c.CloseNow()
		log.Printf("params: connection from %s", r.RemoteAddr)

		for {
			var p mandel.Params
			if err := wsjson.Read(r.Context(), c, &p); err != nil {
				log.Printf("params: %v", err)
				return
			}
			b.submit(p)
		}
	}
}

// framesHandler streams encoded frames to the client and applies colormap
// messages it sends back on the same connection.
func framesHandler(b *backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := accept(w, r)
		if !ok {
			return
		}
		defer c.CloseNow()
		c.SetReadLimit(1 << 10)
		log.Printf("frames: connection from %s", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		frames, unsubscribe := b.subscribe()
		defer unsubscribe()

		go func() {
			defer cancel()
			for {
				var m mandel.ColormapMessage
				if err := wsjson.Read(ctx, c, &m); err != nil {
					return
				}
				b.setColormap(m.Colormap)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case data := <-frames:
				wctx, wcancel := context.WithTimeout(ctx, frameWriteTimeout)
				err := c.Write(wctx, websocket.MessageBinary, data)
				wcancel()
				if err != nil {
					log.Printf("frames: %v", err)
					return
				}
			}
		}
	}
}

// gestureHandler answers pings. The mock has no gesture recogniser, so it
// never sends zoom commands on its own.
func gestureHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := accept(w, r)
		if !ok {
			return
		}
		defer c.CloseNow()
		log.Printf("gesture: connection from %s", r.RemoteAddr)

		for {
			var m mandel.GestureMessage
			if err := wsjson.Read(r.Context(), c, &m); err != nil {
				return
			}
			if m.Type != mandel.GesturePing {
				continue
			}
			replies := []mandel.GestureMessage{
				{Type: mandel.GesturePong},
				{Type: mandel.GestureConnectionStatus, Message: "mock gesture source ready"},
			}
			for _, reply := range replies {
				if err := wsjson.Write(r.Context(), c, reply); err != nil {
					return
				}
			}
		}
	}
}
