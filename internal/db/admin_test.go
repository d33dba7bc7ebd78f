package db

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminFramesCSVRoute(t *testing.T) {
	db := openTestDB(t)

	session, err := db.CreateSession(5, "wave", "relay", time.Unix(1000, 0))
	require.NoError(t, err)
	require.NoError(t, db.AppendFrame(Frame{
		SessionID: session.ID, Index: 0, T: 1000.1, RecvAt: time.Unix(1000, 0),
		X: 0.3, Y: 0, Z: 0.2, Gripper: 0.5,
	}))

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/frames.csv?session=" + session.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), session.ID)

	resp2, err := http.Get(ts.URL + "/debug/frames.csv")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestAdminCSVFilenameSanitized(t *testing.T) {
	db := openTestDB(t)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	// A hostile session id must not leak path separators into the
	// attachment filename.
	resp, err := http.Get(ts.URL + "/debug/frames.csv?session=" + "..%2F..%2Fetc%2Fpasswd")
	require.NoError(t, err)
	defer resp.Body.Close()

	disposition := resp.Header.Get("Content-Disposition")
	assert.NotContains(t, disposition, "/")
	assert.NotContains(t, disposition, "..")
	assert.True(t, strings.HasSuffix(disposition, ".csv"))
}
