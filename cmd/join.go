package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

var (
	flagJoinIdentity string
	flagJoinServer   string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
	flagJoinRelay    bool
	flagJoinCall     bool
	flagJoinAnswer   bool
	flagJoinMsgpack  bool
	flagJoinPlain    bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a room and call the people in it",
	Long: `Join a room on the signaling relay. Everyone already in the room is
listed; pick one and press c to call, or a to answer an incoming call.

Examples:
  warpcall join standup --identity you@example.com
  warpcall join standup --call
  warpcall join standup --answer --plain
  warpcall join standup --turn turn.example.com --turn-user u --turn-pass p --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0])
	},
}

func joinRoom(ctx context.Context, room string) error {
	cfg, err := LoadConfig(config.Options{
		ServerURL:  flagJoinServer,
		Identity:   flagJoinIdentity,
		STUNServer: flagJoinSTUN,
		TURNServer: flagJoinTURN,
		TURNUser:   flagJoinTURNUser,
		TURNPass:   flagJoinTURNPass,
		ForceRelay: flagJoinRelay,
		Msgpack:    flagJoinMsgpack,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	spin := ui.NewConnectionSpinner("Connecting to server...")
	spin.Start()
	conn, err := NewConnectionContext(ctx, cfg, call.Options{
		Room:       room,
		AutoCall:   flagJoinCall,
		AutoAnswer: flagJoinAnswer,
	})
	if err != nil {
		spin.Error("Could not reach the signaling server")
		return err
	}
	defer conn.Close()
	spin.Success(fmt.Sprintf("Connected to %s", cfg.ServerURL))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Agent.Run(ctx) }()

	if flagJoinPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		printUpdates(room, conn.Agent.Updates())
	} else {
		program := tea.NewProgram(ui.NewCallModel(room, conn.Agent.Updates(), conn.Agent))
		go func() {
			<-ctx.Done()
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			cancel()
			return fmt.Errorf("run call view: %w", err)
		}
	}

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	ui.PrintSuccessf("Left room %s", room)
	return nil
}

// printUpdates logs roster and call state changes line by line until the
// agent stops.
func printUpdates(room string, updates <-chan call.Status) {
	spin := ui.NewWaitingSpinner(fmt.Sprintf("Joining room %s...", room))
	spin.Start()
	defer spin.Stop()

	joined := false
	seen := map[string]negotiation.State{}
	names := map[string]string{}

	for st := range updates {
		if st.Joined && !joined {
			joined = true
			spin.Success(fmt.Sprintf("Joined room %s as %s", st.Room, st.LocalID))
			if len(st.Peers) == 0 {
				spin = ui.NewWaitingSpinner(fmt.Sprintf("%s Waiting for someone to join...", ui.IconWaiting))
				spin.Start()
			}
		}
		if len(st.Peers) > 0 || st.Err != nil {
			spin.Stop()
		}

		present := map[string]bool{}
		for _, p := range st.Peers {
			present[p.ID] = true
			name := p.Identity
			if name == "" {
				name = p.ID
			}

			prev, known := seen[p.ID]
			if !known {
				ui.PrintInfof("%s %s is in the room", ui.IconPeer, name)
			}
			if known && prev != p.State {
				line := fmt.Sprintf("%s call with %s: %s", ui.IconCall, name, p.State)
				if p.Err != nil {
					line += fmt.Sprintf(" (%v)", p.Err)
				}
				ui.PrintInfo(line)
			}
			seen[p.ID] = p.State
			names[p.ID] = name
		}

		for id := range seen {
			if !present[id] {
				ui.PrintInfof("%s %s left", ui.IconHangup, names[id])
				delete(seen, id)
				delete(names, id)
			}
		}

		if st.Err != nil {
			ui.PrintWarning(st.Err.Error())
		}
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagJoinIdentity, "identity", "i", "", "Identity shown to peers (default $USER)")
	joinCmd.Flags().StringVar(&flagJoinServer, "server", "", "Signaling websocket URL")
	joinCmd.Flags().StringVarP(&flagJoinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagJoinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagJoinRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().BoolVar(&flagJoinCall, "call", false, "Call everyone already in the room")
	joinCmd.Flags().BoolVar(&flagJoinAnswer, "answer", false, "Answer incoming calls automatically")
	joinCmd.Flags().BoolVar(&flagJoinMsgpack, "msgpack", false, "Use the binary signaling codec")
	joinCmd.Flags().BoolVar(&flagJoinPlain, "plain", false, "Print updates instead of the interactive view")
}
