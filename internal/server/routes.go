package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	Subprotocols:    signaling.Subprotocols,

	// Browser clients are served from other origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs upgrades the request and starts the connection's pumps.
func ServeWs(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.Logger().Warn("failed to upgrade connection", "remote", r.RemoteAddr, "err", err)
			return
		}

		client := signaling.NewClient(hub, conn)
		hub.Connect(client)

		go client.WritePump()
		go client.ReadPump()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// RoomInfo is one entry of the /rooms listing.
type RoomInfo struct {
	ID           string            `json:"id"`
	Participants []ParticipantInfo `json:"participants"`
}

type ParticipantInfo struct {
	ID       string `json:"id"`
	Identity string `json:"identity,omitempty"`
}

// RoomsResponse is the /rooms body.
type RoomsResponse struct {
	Capacity    int        `json:"capacity"`
	Connections int        `json:"connections"`
	Rooms       []RoomInfo `json:"rooms"`
}

// roomsHandler lists every room with its participants.
func roomsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := RoomsResponse{
			Capacity:    hub.Directory.Capacity(),
			Connections: hub.Registry.Len(),
			Rooms:       []RoomInfo{},
		}
		for _, room := range hub.Directory.Snapshot() {
			info := RoomInfo{ID: room.ID, Participants: make([]ParticipantInfo, 0, len(room.Participants))}
			for _, id := range room.Participants {
				p := ParticipantInfo{ID: id}
				if c, ok := hub.Registry.Lookup(id); ok {
					p.Identity = c.Identity()
				}
				info.Participants = append(info.Participants, p)
			}
			resp.Rooms = append(resp.Rooms, info)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			hub.Logger().Debug("write rooms response", "err", err)
		}
	}
}

// NewRouter wires every endpoint of the signaling server.
func NewRouter(hub *signaling.Hub, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /rooms", roomsHandler(hub))
	mux.HandleFunc("/ws", ServeWs(hub))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
