package modbus

import (
	"bytes"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendFrameTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-frame.html.tmpl"))

// maxRawResponse bounds how much a raw debug transaction will read.
const maxRawResponse = 256

// AttachAdminRoutes attaches bus debugging endpoints to the given HTTP mux
// served at /debug/. These routes are accessible only over localhost/via
// Tailscale and are not publicly accessible.
func (b *Bus) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Console page combining the send-frame form with a live transaction tail.
	debug.HandleFunc("send-frame", "send a raw frame on the RS485 bus", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendFrameTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to run one raw transaction on the bus.
	debug.HandleSilentFunc("send-frame-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw := strings.ReplaceAll(strings.TrimSpace(r.FormValue("frame")), " ", "")
		if raw == "" {
			http.Error(w, "Missing frame", http.StatusBadRequest)
			return
		}
		frame, err := hex.DecodeString(raw)
		if err != nil {
			http.Error(w, "Invalid hex: "+err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("crc") == "on" {
			frame = AppendCRC(frame)
		}

		resp, err := b.TransactRaw(r.Context(), frame, maxRawResponse)
		if err != nil {
			fmt.Fprintf(w, "tx % X\nerror: %v", frame, err)
			return
		}
		fmt.Fprintf(w, "tx % X\nrx % X", frame, resp)
	})

	// API endpoint to issue Server-Side Events (SSE) mirroring bus transactions.
	debug.HandleSilentFunc("bus-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := b.Subscribe()
		defer b.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
