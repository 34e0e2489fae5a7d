package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/bindengine/datarecording"
)

var reportCmd = &cobra.Command{
	Use:   "report <recording.sqlite3>",
	Short: "Summarise a recorded session per stage.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		reports, err := datarecording.Report(cmd.Context(), reader)
		if err != nil {
			return err
		}

		return printReport(cmd.OutOrStdout(), reports)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func printReport(w io.Writer, reports []datarecording.StageReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "STAGE\tENTRIES\tEXECUTIONS\tAVG MS\tMAX MS\tREMOVALS")

	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%.3f\t%d\n",
			r.Stage, r.Entries, r.Executions, r.AverageMs, r.MaxMs, r.Removals)
	}

	return tw.Flush()
}
