package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bryanchriswhite/simplerecord/internal/capture"
	"github.com/bryanchriswhite/simplerecord/internal/display"
	"github.com/bryanchriswhite/simplerecord/internal/output"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List pixel formats, URI schemes and display backends",
	Long: `List the pixel formats a source or sink may carry, the URI schemes
understood for sources and outputs, and the display backends.`,
	Example: `  # Show everything as tables
  simplerecord formats

  # Show everything as JSON
  simplerecord formats --format json`,
	Args: cobra.NoArgs,
	RunE: runFormats,
}

var formatsFormat string

func init() {
	rootCmd.AddCommand(formatsCmd)

	formatsCmd.Flags().StringVarP(&formatsFormat, "format", "f", "table", "output format (table or json)")
}

// pixelFormatInfo describes one pixel format
type pixelFormatInfo struct {
	Name         string `json:"name"`
	Channels     int    `json:"channels"`
	BitsPerPixel int    `json:"bits_per_pixel"`
	Layout       string `json:"layout"`
}

type formatsReport struct {
	PixelFormats []pixelFormatInfo    `json:"pixel_formats"`
	Sources      []capture.SchemeInfo `json:"sources"`
	Sinks        []output.SchemeInfo  `json:"sinks"`
	Displays     []string             `json:"displays"`
}

func buildFormatsReport() formatsReport {
	r := formatsReport{
		Sources:  capture.Schemes(),
		Sinks:    output.Schemes(),
		Displays: display.Backends(),
	}
	for _, f := range video.AllFormats() {
		r.PixelFormats = append(r.PixelFormats, pixelFormatInfo{
			Name:         f.String(),
			Channels:     f.Channels(),
			BitsPerPixel: f.BitsPerPixel(),
			Layout:       f.Layout().String(),
		})
	}
	return r
}

func runFormats(cmd *cobra.Command, args []string) error {
	report := buildFormatsReport()
	out := cmd.OutOrStdout()

	switch formatsFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "table":
		return printFormatsTables(out, report)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", formatsFormat)
	}
}

func printFormatsTables(out io.Writer, r formatsReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "FORMAT\tCHANNELS\tBPP\tLAYOUT")
	fmt.Fprintln(w, "------\t--------\t---\t------")
	for _, f := range r.PixelFormats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", f.Name, f.Channels, f.BitsPerPixel, f.Layout)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SOURCE\tEXAMPLE\tDESCRIPTION")
	fmt.Fprintln(w, "------\t-------\t-----------")
	for _, s := range r.Sources {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Scheme, s.Example, s.Description)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "OUTPUT\tEXAMPLE\tDESCRIPTION")
	fmt.Fprintln(w, "------\t-------\t-----------")
	for _, s := range r.Sinks {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Scheme, s.Example, s.Description)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Display backends: %v\n", r.Displays)
	return w.Flush()
}
