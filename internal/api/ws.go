// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// trafficStream pushes every published snapshot to websocket clients.
type trafficStream struct {
	hub       *engine.Hub
	snapshots SnapshotSource
	upgrader  websocket.Upgrader
	logger    *logging.Logger
}

func newTrafficStream(hub *engine.Hub, snapshots SnapshotSource, logger *logging.Logger) *trafficStream {
	return &trafficStream{
		hub:       hub,
		snapshots: snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

func (t *trafficStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		t.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := t.hub.Subscribe()
	defer sub.Close()
	t.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	// Clients only send control frames; reading is needed to process them
	// and to notice the peer going away.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if t.snapshots != nil {
		if snap := t.snapshots.Latest(); snap != nil {
			if err := t.write(conn, snap); err != nil {
				return
			}
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := t.write(conn, snap); err != nil {
				t.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			t.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

func (t *trafficStream) write(conn *websocket.Conn, snap *engine.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(snap)
}
