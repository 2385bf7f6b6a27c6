package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	mandel "github.com/marben/mandel_remote"
	"github.com/marben/mandel_remote/channel"
	"github.com/marben/mandel_remote/config"
)

// main is the entry point for the terminal viewport controller.
// It drives the viewport from keyboard and mouse and keeps the three backend
// channels connected while the UI runs.
func main() {
	if err := run(); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file")
	logPath := flag.String("log", "fractalctl.log", "log file; the terminal is taken by the UI")
	center := flag.String("center", "", "initial center as re,im")
	verbose := flag.Bool("v", false, "verbose channel logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *verbose {
		cfg.Log.Verbose = true
	}

	logFile, err := tea.LogToFile(*logPath, "fractalctl ")
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	defer logFile.Close()

	sup := channel.NewSupervisor(cfg.Endpoints(), cfg.ViewportOptions(), cfg.ChannelOptions()...)
	defer func() {
		if err := sup.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	if *center != "" {
		re, im, _ := strings.Cut(*center, ",")
		if !sup.Viewport.SetCenterText(re, im) {
			return fmt.Errorf("invalid center %q", *center)
		}
	}

	regions := mandel.WatchRegions(sup.Viewport, func(r mandel.Region, near bool) {
		if near {
			log.Printf("near %s", r.DisplayName)
		}
	})
	defer regions.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Printf("channels: %v", err)
		}
	}()

	p := tea.NewProgram(newModel(sup, regions), tea.WithAltScreen(), tea.WithMouseAllMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}
