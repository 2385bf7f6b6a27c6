package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"time"

	mandel "github.com/marben/mandel_remote"
)

// main is the entry point for the mock render backend.
// It stands in for the hardware renderer and its relay: parameters arrive on
// /params, frames leave on /frames and gesture commands on /gesture.
func main() {
	if err := run(); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func run() error {
	port := flag.Int("port", 8080, "http port")
	workers := flag.Int("workers", runtime.NumCPU(), "parallel tile workers")
	quality := flag.Int("quality", 85, "jpeg quality")
	compress := flag.Bool("zlib", false, "zlib-compress frames")
	flag.Parse()

	renderer := newTileRenderer(mandel.ScreenWidth, mandel.ScreenHeight, *workers)
	b := newBackend(renderer, frameEncoder{quality: *quality, zlib: *compress})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go b.run(ctx)

	httpServer := webServer(b, *port)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("mock backend waiting for websocket connections")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpServer: %w", err)
	}
	return nil
}
