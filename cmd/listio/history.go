package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/listio/internal/app"
)

var (
	exportFormat string
	exportOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local activity history",
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the history as JSON or CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "json" && exportFormat != "csv" {
			return fmt.Errorf("unknown format %q (want json or csv)", exportFormat)
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			var data []byte
			switch exportFormat {
			case "csv":
				s, err := a.History.ExportCSV()
				if err != nil {
					return err
				}
				data = []byte(s + "\n")
			default:
				b, err := a.History.ExportJSON()
				if err != nil {
					return err
				}
				data = append(b, '\n')
			}

			var w io.Writer = cmd.OutOrStdout()
			if exportOutput != "" && exportOutput != "-" {
				f, err := os.Create(exportOutput)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			return nil
		})
	},
}

func init() {
	historyExportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format (json, csv)")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to a file instead of stdout")
	historyCmd.AddCommand(historyExportCmd)
}
