package modbus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func newTestBusMux(t *testing.T) (*Bus, *http.ServeMux) {
	t.Helper()
	port := NewTestablePort()
	port.AutoRespond = func(request []byte) []byte {
		if len(request) > 0 && request[0] == 0x50 {
			return buildReadResponse(0x50, []int16{1, 2, 3})
		}
		return nil
	}
	bus := NewBus(port)
	bus.Timeout = 20 * time.Millisecond // keeps the no-response cases fast

	httpMux := http.NewServeMux()
	bus.AttachAdminRoutes(httpMux)
	return bus, httpMux
}

// TestAttachAdminRoutes_SendFramePage tests the console HTML page.
func TestAttachAdminRoutes_SendFramePage(t *testing.T) {
	_, httpMux := newTestBusMux(t)

	req := localHostRequest(http.MethodGet, "/debug/send-frame", nil)
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "<") {
		t.Error("response doesn't appear to be HTML")
	}
}

// TestAttachAdminRoutes_SendFrameAPI tests the raw transaction endpoint.
func TestAttachAdminRoutes_SendFrameAPI(t *testing.T) {
	_, httpMux := newTestBusMux(t)

	tests := []struct {
		name           string
		method         string
		formData       url.Values
		expectedStatus int
		checkBody      func(t *testing.T, body string)
	}{
		{
			name:           "probe with appended CRC",
			method:         http.MethodPost,
			formData:       url.Values{"frame": {"50 03 00 34 00 03"}, "crc": {"on"}},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body string) {
				if !strings.Contains(body, "rx") {
					t.Errorf("expected a response line, got: %s", body)
				}
			},
		},
		{
			name:           "no response reports the error",
			method:         http.MethodPost,
			formData:       url.Values{"frame": {"51 03 00 34 00 03"}, "crc": {"on"}},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body string) {
				if !strings.Contains(body, "error") {
					t.Errorf("expected an error line, got: %s", body)
				}
			},
		},
		{
			name:           "missing frame",
			method:         http.MethodPost,
			formData:       url.Values{"frame": {""}},
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body string) {
				if !strings.Contains(body, "Missing frame") {
					t.Errorf("expected 'Missing frame' error, got: %s", body)
				}
			},
		},
		{
			name:           "invalid hex",
			method:         http.MethodPost,
			formData:       url.Values{"frame": {"not hex"}},
			expectedStatus: http.StatusBadRequest,
			checkBody:      nil,
		},
		{
			name:           "GET method not allowed",
			method:         http.MethodGet,
			formData:       nil,
			expectedStatus: http.StatusMethodNotAllowed,
			checkBody:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.formData != nil {
				body = strings.NewReader(tt.formData.Encode())
			}

			req := localHostRequest(tt.method, "/debug/send-frame-api", body)
			if tt.formData != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}

			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d. Body: %s", w.Code, tt.expectedStatus, w.Body.String())
			}
			if w.Code == tt.expectedStatus && tt.checkBody != nil {
				tt.checkBody(t, w.Body.String())
			}
		})
	}
}

// TestAttachAdminRoutes_BusTail tests tail endpoint method handling.
func TestAttachAdminRoutes_BusTail(t *testing.T) {
	_, httpMux := newTestBusMux(t)

	req := localHostRequest(http.MethodPost, "/debug/bus-tail", nil)
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
