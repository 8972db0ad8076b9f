package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/BioHazard786/Warpcall/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "1:1 audio/video calls over WebRTC with a tiny signaling relay",
	Long: `Warpcall pairs participants of a room and relays the WebRTC offer/answer
and ICE candidates between them. Media flows peer to peer; the relay only
forwards signaling.

Run "warpcall serve" to host a relay and "warpcall join <room>" to call
someone in a room.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(slog.LevelError)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
