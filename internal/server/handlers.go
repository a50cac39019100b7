package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aicodix/cofdmtv/internal/audio"
	"github.com/aicodix/cofdmtv/internal/modem"
	"github.com/aicodix/cofdmtv/internal/protocol"
)

// Handlers holds the HTTP API handlers.
type Handlers struct {
	session    *protocol.Session
	wsHub      *WSHub
	uploadDir  string
	receiveDir string
	mu         sync.Mutex

	// Physical-layer defaults; an /api/send request can override the
	// call sign, the other fields are fixed for the handler's lifetime.
	rate        modem.Rate
	carrierHz   float64
	callSign    string
	noiseSyms   int
	fancyHeader bool
}

// NewHandlers creates new API handlers, defaulting to the physical
// layer parameters rate/carrierHz/callSign (only callSign can be
// overridden, per /api/send request).
func NewHandlers(uploadDir, receiveDir string, rate modem.Rate, carrierHz float64, callSign string) *Handlers {
	return &Handlers{
		wsHub:      NewWSHub(),
		uploadDir:  uploadDir,
		receiveDir: receiveDir,
		rate:       rate,
		carrierHz:  carrierHz,
		callSign:   callSign,
		noiseSyms:  1,
	}
}

// HandleWebSocket handles WebSocket upgrade requests.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	h.wsHub.AddClient(conn)

	// Read messages (for potential commands from client)
	go func() {
		defer h.wsHub.RemoveClient(conn)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

// HandleUpload handles file upload for sending.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form (max 10MB)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, fmt.Sprintf("Parse form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("Get file: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Save to upload directory
	os.MkdirAll(h.uploadDir, 0755)
	outPath := filepath.Join(h.uploadDir, header.Filename)
	outFile, err := os.Create(outPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Create file: %v", err), http.StatusInternalServerError)
		return
	}
	defer outFile.Close()

	written, err := io.Copy(outFile, file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Save file: %v", err), http.StatusInternalServerError)
		return
	}

	h.wsHub.BroadcastLog("info", fmt.Sprintf("File uploaded: %s (%d bytes)", header.Filename, written))

	json.NewEncoder(w).Encode(map[string]interface{}{
		"filename": header.Filename,
		"size":     written,
		"status":   "uploaded",
	})
}

// HandleSend initiates file sending.
func (h *Handlers) HandleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Filename string `json:"filename"`
		CallSign string `json:"callSign"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Parse request: %v", err), http.StatusBadRequest)
		return
	}

	filePath := filepath.Join(h.uploadDir, req.Filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	callSign := h.callSign
	if req.CallSign != "" {
		callSign = strings.ToUpper(req.CallSign)
	}

	// Start sending in background
	go func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		session, err := protocol.NewSession(h.rate, h.carrierHz, callSign, protocol.ModeSend)
		if err != nil {
			h.wsHub.BroadcastStatus("error", fmt.Sprintf("Session create failed: %v", err))
			return
		}
		session.SetNoiseSymbols(h.noiseSyms)
		session.SetFancyHeader(h.fancyHeader)
		h.session = session
		defer session.Close()

		done := make(chan struct{})
		defer close(done)
		go h.pumpEvents(session, done)

		if err := session.Open(); err != nil {
			h.wsHub.BroadcastStatus("error", fmt.Sprintf("Audio open failed: %v", err))
			return
		}

		h.wsHub.BroadcastStatus("connecting", "Performing handshake...")

		// Handshake
		if err := session.Transport().Handshake(); err != nil {
			h.wsHub.BroadcastStatus("error", fmt.Sprintf("Handshake failed: %v", err))
			return
		}

		h.wsHub.BroadcastStatus("transferring", "Sending file...")

		// Send file
		sender := protocol.NewFileSender(session.Transport())
		sender.SetProgressCallback(func(sent, total int64, status string) {
			progress := float64(sent) / float64(total)
			h.wsHub.BroadcastProgress("transferring", status, progress, sent, total)
		})

		if err := sender.SendFile(filePath); err != nil {
			h.wsHub.BroadcastStatus("error", fmt.Sprintf("Send failed: %v", err))
			return
		}

		h.wsHub.BroadcastStatus("completed", "File sent successfully!")
	}()

	json.NewEncoder(w).Encode(map[string]string{
		"status": "sending",
	})
}

// HandleReceiveStart starts receiving mode.
func (h *Handlers) HandleReceiveStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct{}
	json.NewDecoder(r.Body).Decode(&req)

	go func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		session, err := protocol.NewSession(h.rate, h.carrierHz, h.callSign, protocol.ModeReceive)
		if err != nil {
			h.wsHub.BroadcastStatus("error", fmt.Sprintf("Session create failed: %v", err))
			return
		}
		session.SetNoiseSymbols(h.noiseSyms)
		session.SetFancyHeader(h.fancyHeader)
		h.session = session
		defer session.Close()

		done := make(chan struct{})
		defer close(done)
		go h.pumpEvents(session, done)

		if err := session.Open(); err != nil {
			h.wsHub.BroadcastStatus("error", fmt.Sprintf("Audio open failed: %v", err))
			return
		}

		h.wsHub.BroadcastStatus("connecting", "Waiting for handshake...")

		// Wait for handshake
		if err := session.Transport().WaitForHandshake(30 * 1000000000); err != nil { // 30 seconds
			h.wsHub.BroadcastStatus("error", fmt.Sprintf("Handshake failed: %v", err))
			return
		}

		h.wsHub.BroadcastStatus("transferring", "Receiving file...")

		// Receive file
		os.MkdirAll(h.receiveDir, 0755)
		receiver := protocol.NewFileReceiver(session.Transport(), h.receiveDir)
		receiver.SetProgressCallback(func(received, total int64, status string) {
			progress := float64(received) / float64(total)
			h.wsHub.BroadcastProgress("transferring", status, progress, received, total)
		})

		meta, err := receiver.ReceiveFile(60 * 1000000000) // 60 second timeout
		if err != nil {
			h.wsHub.BroadcastStatus("error", fmt.Sprintf("Receive failed: %v", err))
			return
		}

		h.wsHub.BroadcastStatus("completed", fmt.Sprintf("File received: %s (%d bytes)", meta.Filename, meta.Size))
	}()

	json.NewEncoder(w).Encode(map[string]string{
		"status": "receiving",
	})
}

// pumpEvents forwards session events to the WebSocket hub so the UI
// sees transfer status and, for decoded physical frames, the staged
// preamble info (who is transmitting, mode, CFO).
func (h *Handlers) pumpEvents(session *protocol.Session, done <-chan struct{}) {
	for {
		select {
		case ev := <-session.Events():
			if ev.Staged != nil {
				h.wsHub.BroadcastStaged(ev.Staged.CallSign, ev.Staged.Mode, ev.Staged.CFOHz)
			}
			if ev.Message != "" {
				h.wsHub.BroadcastLog("info", ev.Message)
			}
		case <-done:
			return
		}
	}
}

// HandleConfig reports the physical-layer parameters the server
// transmits with.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sampleRate":   int(h.rate),
		"carrierHz":    h.carrierHz,
		"callSign":     h.callSign,
		"noiseSymbols": h.noiseSyms,
		"fancyHeader":  h.fancyHeader,
	})
}

// HandleStatus returns current session status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := "idle"
	if h.session != nil {
		status = "active"
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
	})
}

// HandleDevices lists available audio devices.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := audio.ListDevices()
	if err != nil {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"devices":   devices,
		"hasInput":  audio.HasInputDevice(),
		"hasOutput": audio.HasOutputDevice(),
	})
}

// HandleDownload serves received files for download.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/api/download/")
	if filename == "" {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return
	}

	filePath := filepath.Join(h.receiveDir, filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, filePath)
}
