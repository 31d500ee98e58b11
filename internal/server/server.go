// Package server exposes the playback control surface over HTTP plus a
// websocket frame preview for browsers.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ledgrid/matrixd/internal/gifdec"
	"github.com/ledgrid/matrixd/internal/playback"
)

type Server struct {
	eng      *playback.Engine
	rows     int
	cols     int
	maxBytes int
	allow    []*net.IPNet

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	frameID uint64
}

func New(eng *playback.Engine, rows, cols, maxBytes int, allowNets []string) (*Server, error) {
	s := &Server{
		eng:      eng,
		rows:     rows,
		cols:     cols,
		maxBytes: maxBytes,
		clients:  map[*websocket.Conn]bool{},
	}
	for _, raw := range allowNets {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, ipnet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid allow_nets entry %q: %w", raw, err)
		}
		s.allow = append(s.allow, ipnet)
	}
	return s, nil
}

// Handler assembles the route table behind the allowlist and CORS
// wrappers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/brightness", s.handleBrightness)
	mux.HandleFunc("/clear", s.handleClear)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleRoot)
	return s.withAllowlist(withCORS(mux))
}

func (s *Server) withAllowlist(h http.Handler) http.Handler {
	if len(s.allow) == 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !s.clientAllowed(ip) {
			writeJSON(w, http.StatusForbidden, map[string]any{"ok": false, "detail": "forbidden"})
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Server) clientAllowed(ip net.IP) bool {
	for _, n := range s.allow {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// handleUpload accepts a GIF either as raw bytes or as the "file"
// field of a multipart form.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "detail": "POST required"})
		return
	}
	if s.maxBytes > 0 && r.ContentLength > int64(s.maxBytes) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"ok": false, "detail": "upload-too-large"})
		return
	}

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		f, _, ferr := r.FormFile("file")
		if ferr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "detail": "upload-failed:no-file-field"})
			return
		}
		defer f.Close()
		data, err = io.ReadAll(f)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "detail": "upload-failed:read"})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "detail": "upload-failed:empty-body"})
		return
	}

	res, err := s.eng.ReplaceAnimation(data)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, gifdec.ErrPayloadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]any{"ok": false, "detail": "bad-image:" + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"id":        res.ID,
		"bytes":     res.Bytes,
		"frames":    res.Frames,
		"truncated": res.Truncated,
	})
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "detail": "POST required"})
		return
	}
	var body struct {
		Value *int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "detail": "bad-brightness:missing value"})
		return
	}
	if err := s.eng.SetBrightness(*body.Value); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "detail": "bad-brightness:" + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "brightness": *body.Value})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "detail": "POST required"})
		return
	}
	s.eng.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Status())
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ping": "pong"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"hint_raw":       "curl --data-binary @anim.gif http://<host>/upload",
		"hint_multipart": "curl -F 'file=@anim.gif;type=image/gif' http://<host>/upload",
		"brightness":     `curl -X POST -H 'Content-Type: application/json' -d '{"value":60}' http://<host>/brightness`,
		"clear":          "curl -X POST http://<host>/clear",
	})
}

// handleWS registers a preview client; frames are pushed from the tee
// driver via BroadcastFrame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type previewFrame struct {
	T       int64  `json:"t"`
	FrameID uint64 `json:"frame_id"`
	Rows    int    `json:"rows"`
	Cols    int    `json:"cols"`
	RGB     []byte `json:"rgb"`
}

// BroadcastFrame fans the frame out to connected preview clients.
func (s *Server) BroadcastFrame(rgb []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return
	}
	s.frameID++
	b, _ := json.Marshal(previewFrame{
		T:       time.Now().UnixNano(),
		FrameID: s.frameID,
		Rows:    s.rows,
		Cols:    s.cols,
		RGB:     rgb,
	})
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write preview frame")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("encode response")
	}
}
