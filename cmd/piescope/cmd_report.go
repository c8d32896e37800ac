package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"piescope/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <file>",
	Short: "Print the contents of a transformation report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := report.ReadFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", r.Title)
		if !r.Time.IsZero() {
			fmt.Fprintf(out, "created:  %s\n", r.Time.Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Fprintf(out, "version:  %s\n", r.Version)
		fmt.Fprintf(out, "det:      %.6g\n", r.Matrix.Determinant())
		for _, row := range r.Matrix.Homogeneous() {
			fmt.Fprintf(out, "  %12.6f %12.6f %12.6f\n", row[0], row[1], row[2])
		}
		fmt.Fprintf(out, "points:   %d\n", len(r.Points))
		for _, p := range r.Points {
			fmt.Fprintf(out, "  #%d  A(%.2f, %.2f) -> B(%.2f, %.2f)\n", p.ID, p.AX, p.AY, p.BX, p.BY)
		}
		return nil
	},
}
