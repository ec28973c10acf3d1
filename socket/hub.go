package socket

import (
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/sirupsen/logrus"
)

// Hub is the legacy shim's socket.io server. Clients join one room per
// competition they are watching; when someone logs an action the hub tells
// the room its leaderboard is stale, and clients refetch.
type Hub struct {
	server *socketio.Server
	log    *logrus.Logger
}

// NewHub creates the socket server and registers its event handlers.
func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	server := socketio.NewServer(nil)
	h := &Hub{server: server, log: log}

	server.OnConnect("/", func(s socketio.Conn) error {
		log.WithField("socket", s.ID()).Debug("socket connected")
		return nil
	})

	server.OnEvent("/", "joinCompetition", func(s socketio.Conn, competitionID string) {
		if competitionID == "" {
			return
		}
		s.Join(room(competitionID))
		log.WithFields(logrus.Fields{
			"socket":      s.ID(),
			"competition": competitionID,
		}).Debug("joined competition room")
	})

	server.OnEvent("/", "leaveCompetition", func(s socketio.Conn, competitionID string) {
		if competitionID == "" {
			return
		}
		s.Leave(room(competitionID))
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.WithFields(logrus.Fields{
			"socket": s.ID(),
			"reason": reason,
		}).Debug("socket disconnected")
	})

	return h
}

// BroadcastLeaderboardDirty tells a competition room to refetch its
// leaderboard. The payload is just the competition id; clients fetch the
// fresh standings themselves.
func (h *Hub) BroadcastLeaderboardDirty(competitionID string) {
	h.server.BroadcastToRoom("/", room(competitionID), "leaderboardDirty", competitionID)
}

// Handler returns the HTTP handler to mount at /socket.io/.
func (h *Hub) Handler() http.Handler {
	return h.server
}

// Serve runs the socket server's accept loop.
func (h *Hub) Serve() error {
	return h.server.Serve()
}

// Close shuts the socket server down.
func (h *Hub) Close() error {
	return h.server.Close()
}

func room(competitionID string) string {
	return "competition:" + competitionID
}
