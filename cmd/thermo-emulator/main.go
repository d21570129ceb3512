package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// rootCmd 无子命令时的入口
var rootCmd = &cobra.Command{
	Use:   "thermo-emulator",
	Short: "Thermometer device emulator",
	Long: `Emulates a temperature-monitoring peripheral speaking the AA55 TLV protocol.

- serve:  run the emulator over TCP, serial and BLE transports
- client: send one command to a running emulator and print the response`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
}
