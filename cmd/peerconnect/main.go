package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "peerconnect",
	Short: "Headless two-party WebRTC call client",
	Long: `peerconnect joins a room on a signaling relay and runs a call with the
other participant using synthetic audio and video. Chat, reactions and
camera/mic toggles are read from stdin.`,
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.AddCommand(joinCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
