package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/server"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

var flagRoomsServer string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms open on a signaling server",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL, err := roomsBaseURL(flagRoomsServer)
		if err != nil {
			return err
		}

		resp, err := fetchRooms(cmd.Context(), baseURL)
		if err != nil {
			return fmt.Errorf("list rooms: %w", err)
		}
		fmt.Println(ui.RoomsTable(*resp))
		return nil
	},
}

// roomsBaseURL accepts the server's HTTP origin as is and maps a websocket
// endpoint (flag, env or default) to its origin.
func roomsBaseURL(addr string) (string, error) {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/"), nil
	}
	cfg, err := LoadConfig(config.Options{ServerURL: addr})
	if err != nil {
		return "", err
	}
	return cfg.HTTPBaseURL(), nil
}

func fetchRooms(ctx context.Context, baseURL string) (*server.RoomsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var rooms server.RoomsResponse
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return &rooms, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsCmd.Flags().StringVar(&flagRoomsServer, "server", "", "Signaling websocket URL or HTTP origin")
}
