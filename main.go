// Package main is the entry point for the MACA engine.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/joho/godotenv"

	"github.com/ruvelro/maca-engine/internal/app"
	"github.com/ruvelro/maca-engine/internal/config"
	"github.com/ruvelro/maca-engine/internal/events"
	"github.com/ruvelro/maca-engine/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; config env expansion picks the values up.
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	configManager := config.NewManager(home)
	if err := configManager.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := configManager.Get()

	broker := events.NewBroker()
	defer broker.Clear()

	application := app.New(cfg, broker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The bridge and observer run behind the TUI; if they die, the
	// dashboard is told why and the program exits.
	runErr := make(chan error, 1)
	go func() {
		runErr <- application.Run(ctx)
	}()

	p := tea.NewProgram(
		tui.New(broker, application.Coordinator),
		tea.WithAltScreen(),
	)

	go func() {
		if err := <-runErr; err != nil && ctx.Err() == nil {
			broker.Publish(events.Event{
				Type:    events.StatusMessageEvent,
				Payload: events.StatusMessagePayload{Message: "engine error: " + err.Error()},
			})
			p.Quit()
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}

	cancel()
	return nil
}
