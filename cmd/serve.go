package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/server"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

var (
	flagServeAddr     string
	flagServeCapacity int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay. Clients connect to /ws; /health, /rooms and
/metrics are served alongside.

Examples:
  warpcall serve
  warpcall serve --addr :9000 --capacity 0
  WARPCALL_ROOM_CAPACITY=4 warpcall serve`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(slog.LevelInfo)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts config.ServerOptions
		if cmd.Flags().Changed("addr") {
			opts.ListenAddr = &flagServeAddr
		}
		if cmd.Flags().Changed("capacity") {
			opts.RoomCapacity = &flagServeCapacity
		}

		cfg, err := config.LoadServer(opts)
		if err != nil {
			return err
		}

		capacity := "unlimited"
		if cfg.RoomCapacity > 0 {
			capacity = fmt.Sprint(cfg.RoomCapacity)
		}
		fmt.Println(ui.InfoBoxStyle.Render(fmt.Sprintf("%s %s\n%s %s",
			ui.BoldStyle.Render("Listening on "), cfg.ListenAddr,
			ui.BoldStyle.Render("Room capacity"), capacity)))

		return server.New(cfg, slog.Default()).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagServeAddr, "addr", "a", ":8080", "Listen address")
	serveCmd.Flags().IntVarP(&flagServeCapacity, "capacity", "c", 2, "Participants per room (0 = unlimited)")
}
