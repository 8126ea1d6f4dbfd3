package cmd

import (
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <photo.jpg>",
	Short: "Recognize faces in a photo",
	Long: `Detect all faces in a photo and match them against the registered
embeddings. With --log, attendance is recorded for every recognized face
subject to the configured dedup policy.

Examples:
  face-attendance recognize frame.jpg
  face-attendance recognize frame.jpg --log --source entrance`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Bool("log", false, "Record attendance for recognized faces")
	recognizeCmd.Flags().String("source", "cli", "Source label for attendance records")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, cancel := timeoutContext()
	defer cancel()

	system, cleanup, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	results, err := system.Recognize(ctx, data)
	if err != nil {
		return fmt.Errorf("recognizing %s: %w", args[0], err)
	}

	if len(results) == 0 {
		fmt.Println("No faces detected")
		return nil
	}

	logAttendance := mustGetBool(cmd, "log")
	source := mustGetString(cmd, "source")

	for i, result := range results {
		if result.Identity == matcher.Unknown {
			fmt.Printf("Face %d: %s (distance %.4f)\n", i+1, result.Identity, result.Distance)
			continue
		}
		fmt.Printf("Face %d: %s (distance %.4f)\n", i+1, result.Identity, result.Distance)

		if logAttendance {
			logged, err := system.LogAttendance(ctx, result, source)
			if err != nil {
				fmt.Printf("  attendance failed: %v\n", err)
				continue
			}
			if logged {
				fmt.Println("  attendance recorded")
			} else {
				fmt.Println("  already recorded for this session")
			}
		}
	}
	return nil
}
