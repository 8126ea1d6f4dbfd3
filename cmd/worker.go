package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the MQTT edge worker",
	Long: `Run an MQTT worker that subscribes to camera frames, recognizes
faces and publishes results on a per-request response topic. With
MQTT_LOG_RESULTS=true recognized faces are also recorded in the
attendance ledger.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.MQTT.Broker == "" {
		return errors.New("MQTT_BROKER environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	system, cleanup, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	fmt.Printf("Starting MQTT worker on %s (frames: %s)\n", cfg.MQTT.Broker, cfg.MQTT.FrameTopic)
	return worker.New(system, cfg.MQTT).Run(ctx)
}
