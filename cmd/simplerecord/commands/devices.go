package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/simplerecord/internal/capture"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List Video4Linux devices",
	Long: `List the /dev/video* devices and the pixel formats and frame sizes
each one offers. Every device can be recorded with its v4l URI.`,
	Example: `  # List devices in table format (default)
  simplerecord devices

  # List devices with their frame sizes as JSON
  simplerecord devices --format json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var devicesFormat string

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "output format (table or json)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := capture.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	out := cmd.OutOrStdout()
	switch devicesFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(devices)
	case "table":
		return printDevicesTable(out, devices)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", devicesFormat)
	}
}

func printDevicesTable(out io.Writer, devices []capture.DeviceInfo) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No video devices found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "URI\tFORMATS\tSTATUS")
	fmt.Fprintln(w, "---\t-------\t------")

	for _, d := range devices {
		formats := make([]string, 0, len(d.Formats))
		for _, f := range d.Formats {
			formats = append(formats, f.FourCC)
		}
		status := "ok"
		if d.Error != "" {
			status = d.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.URI(), strings.Join(formats, ","), status)
	}

	return nil
}
