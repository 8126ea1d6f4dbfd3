package cmd

import (
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <user> <photo.jpg> [photo2.jpg ...]",
	Short: "Register face photos for a user",
	Long: `Register one or more face photos under a user identity.
Each photo must contain exactly one recognizable face. The last photo
wins as the active embedding; all photos are kept for rebuilds.

Examples:
  face-attendance enroll "Jiri Novak" photo.jpg
  face-attendance enroll alice front.jpg side.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, cancel := timeoutContext()
	defer cancel()

	system, cleanup, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	user := args[0]
	for _, path := range args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		identity, key, err := system.Enroll(ctx, user, data)
		if err != nil {
			return fmt.Errorf("enrolling %s: %w", path, err)
		}
		fmt.Printf("Enrolled %s as %s (%s)\n", path, identity, key)
	}
	return nil
}
