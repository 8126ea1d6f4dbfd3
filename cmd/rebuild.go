package cmd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/registry"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the embedding registry from stored photos",
	Long: `Recompute every face embedding from the stored reference photos and
replace the registry contents in one shot. Photos without a detectable
face are skipped. The registry is only replaced when at least one
embedding was computed, so a broken photo set never wipes a working
registry.

Examples:
  # Rebuild with 5 concurrent extractor requests
  face-attendance rebuild

  # Use different concurrency
  face-attendance rebuild --concurrency 3`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().Int("concurrency", 5, "Number of parallel extractor requests")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")

	cfg := config.Load()

	ctx, cancel := timeoutContext()
	defer cancel()

	regStore, _, assetStore, cleanup, err := newStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	objects, err := assetStore.List(ctx)
	if err != nil {
		return fmt.Errorf("listing photos: %w", err)
	}
	if len(objects) == 0 {
		return errors.New("no stored photos to rebuild from")
	}
	fmt.Printf("Photos to process: %d\n\n", len(objects))

	bar := progressbar.NewOptions(len(objects),
		progressbar.OptionSetDescription("Computing embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	ext := extractor.NewHTTPClient(cfg.Extractor.URL)

	var mu sync.Mutex
	var samples []registry.Sample
	var skipped int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, obj := range objects {
		g.Go(func() error {
			defer bar.Add(1)

			data, err := assetStore.Get(gctx, obj.Key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", obj.Key, err)
			}

			vector, err := ext.EncodeFace(gctx, data)
			if err != nil {
				if errors.Is(err, extractor.ErrNoFace) {
					mu.Lock()
					skipped++
					mu.Unlock()
					return nil
				}
				return fmt.Errorf("encoding %s: %w", obj.Key, err)
			}

			mu.Lock()
			samples = append(samples, registry.Sample{Identity: obj.Identity, Vector: vector})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println()

	reg := registry.New(regStore, cfg.Extractor.Dim)
	embeddings, err := reg.RebuildAll(ctx, samples)
	if err != nil {
		return fmt.Errorf("rebuilding registry: %w", err)
	}

	fmt.Printf("\nRebuilt registry: %d identities from %d photos (%d skipped)\n",
		len(embeddings), len(objects), skipped)
	return nil
}
