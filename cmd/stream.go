package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/model"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// recordStream records a stream's latency once its terminal event is seen.
func (h *handlers) recordStream(start time.Time, ev model.Event) {
	if ev.Type.Terminal() {
		h.app.collector.Record(opTimeTravel, time.Since(start), ev.Type == model.EventComplete)
	}
}

// timeTravelStream serves events as server-sent events. A client disconnect
// cancels the request context, which stops the producer.
func (h *handlers) timeTravelStream(w http.ResponseWriter, r *http.Request) {
	var req timeTravelRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, err, nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	start := time.Now()
	for ev := range h.app.timeTravel.Stream(r.Context(), req.Question, req.Force) {
		frame, err := ev.SSE()
		if err != nil {
			zap.L().Warn("stream: encode event", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}
		if _, err := w.Write(frame); err != nil {
			// The producer sees the cancelled context and drains.
			zap.L().Debug("stream: client went away", zap.Error(err))
			continue
		}
		flusher.Flush()
		h.recordStream(start, ev)
	}
}

// timeTravelWS serves events over a websocket. The question and force flag
// come from the query string since browsers cannot send a body on upgrade.
func (h *handlers) timeTravelWS(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	req := timeTravelRequest{Question: r.URL.Query().Get("question"), Force: force}
	if err := req.validate(); err != nil {
		h.fail(w, r, err, nil)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Inbound frames are ignored; a read error means the peer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	start := time.Now()
	events := h.app.timeTravel.Stream(ctx, req.Question, req.Force)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				cancel()
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				cancel()
				continue
			}
			h.recordStream(start, ev)
			if ev.Type.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Type)),
					time.Now().Add(wsWriteWait))
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				cancel()
				continue
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
			}
		}
	}
}
