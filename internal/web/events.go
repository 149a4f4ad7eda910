package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/gridedit/internal/logging"
)

const heartbeatInterval = 15 * time.Second

// handleEvents streams table events as Server-Sent Events. The first
// message is a "snapshot" of the current view. Each event uses its table
// sequence number as the SSE id, so a reconnecting client that sends
// Last-Event-ID skips events it has already seen on this stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	logger := logging.ForTable(r.Context(), sess.ID.String())

	var lastSeq uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastSeq, _ = strconv.ParseUint(v, 10, 64)
	}

	ch := sess.Events.Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	// The stream outlives the server's WriteTimeout.
	_ = rc.SetWriteDeadline(time.Time{})
	send := func(id, event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if id != "" {
			fmt.Fprintf(w, "id: %s\n", id)
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		return rc.Flush()
	}

	if err := send("", "snapshot", viewOf(sess)); err != nil {
		logger.Warn("event stream not supported", "error", err)
		return
	}
	logger.Debug("event stream opened")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("event stream closed by client")
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			if err := rc.Flush(); err != nil {
				return
			}

		case ev, ok := <-ch:
			if !ok {
				_ = send("", "closed", map[string]string{"id": sess.ID.String()})
				return
			}
			if ev.Payload.Seq <= lastSeq {
				continue
			}
			if err := send(strconv.FormatUint(ev.Payload.Seq, 10), string(ev.Type), ev.Payload); err != nil {
				logger.Warn("event stream write failed", "error", err)
				return
			}
		}
	}
}
