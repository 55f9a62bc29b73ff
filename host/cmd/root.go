// Package cmd implements the gopper-host CLI's command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	device string
	baud   int
)

var rootCmd = &cobra.Command{
	Use:   "gopper-host",
	Short: "Gopper Host - G-code line sender for the standalone firmware",
	Long: `gopper-host talks to a gopper board over its USB CDC serial port
using the firmware's line-based G-code protocol: one line in, one "ok" or
"error: ..." line back, with any report lines (M105/M114) surfaced ahead
of the ack.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&device, "device", "d", "/dev/ttyACM0", "Serial device path")
	rootCmd.PersistentFlags().IntVarP(&baud, "baud", "b", 250000, "Baud rate (ignored by USB CDC boards)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
