package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attend"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Query and export the attendance ledger",
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records",
	Long: `List attendance records ordered by timestamp.

Examples:
  face-attendance attendance list
  face-attendance attendance list --user alice --from 2026-03-01 --to 2026-03-31`,
	RunE: runAttendanceList,
}

var attendanceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export attendance records as CSV",
	Long: `Write attendance records as CSV to a file or standard output.

Examples:
  face-attendance attendance export --output attendance.csv
  face-attendance attendance export --user alice`,
	RunE: runAttendanceExport,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceListCmd)
	attendanceCmd.AddCommand(attendanceExportCmd)

	for _, c := range []*cobra.Command{attendanceListCmd, attendanceExportCmd} {
		c.Flags().String("user", "", "Filter by user identity")
		c.Flags().String("from", "", "Start date (2006-01-02 or RFC 3339)")
		c.Flags().String("to", "", "End date (2006-01-02 or RFC 3339)")
	}
	attendanceExportCmd.Flags().String("output", "", "Output file (default stdout)")
}

// flagFilter builds a ledger filter from the shared flags.
func flagFilter(cmd *cobra.Command) (ledger.Filter, error) {
	var f ledger.Filter
	f.Identity = attend.NormalizeIdentity(mustGetString(cmd, "user"))

	parse := func(s string) (time.Time, error) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02", s)
	}

	if s := mustGetString(cmd, "from"); s != "" {
		t, err := parse(s)
		if err != nil {
			return f, fmt.Errorf("invalid --from value %q", s)
		}
		f.Start = t
	}
	if s := mustGetString(cmd, "to"); s != "" {
		t, err := parse(s)
		if err != nil {
			return f, fmt.Errorf("invalid --to value %q", s)
		}
		f.End = t
	}
	return f, nil
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	filter, err := flagFilter(cmd)
	if err != nil {
		return err
	}

	cfg := config.Load()

	ctx, cancel := timeoutContext()
	defer cancel()

	system, cleanup, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	seq, err := system.QueryAttendance(ctx, filter)
	if err != nil {
		return err
	}

	count := 0
	for rec := range seq {
		fmt.Printf("%s  %-24s %-12s %s\n",
			rec.Timestamp.UTC().Format(time.RFC3339), rec.Identity, rec.Source, rec.SessionKey)
		count++
	}
	fmt.Printf("\n%d records\n", count)
	return nil
}

func runAttendanceExport(cmd *cobra.Command, args []string) error {
	filter, err := flagFilter(cmd)
	if err != nil {
		return err
	}
	output := mustGetString(cmd, "output")

	cfg := config.Load()

	ctx, cancel := timeoutContext()
	defer cancel()

	system, cleanup, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	seq, err := system.QueryAttendance(ctx, filter)
	if err != nil {
		return err
	}

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		out = f
	}

	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"user_id", "timestamp", "source", "session_id"}); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	count := 0
	for rec := range seq {
		err := cw.Write([]string{
			rec.Identity,
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.Source,
			rec.SessionKey,
		})
		if err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
		count++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}

	if output != "" {
		fmt.Printf("Exported %d records to %s\n", count, output)
	}
	return nil
}
