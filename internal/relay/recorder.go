package relay

import (
	"sync"
	"time"

	"github.com/armlink-data/teleop.rig/internal/db"
	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/teleop"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

// Recorder appends every teleop frame crossing the viewer relay to a
// SQLite session. Wire it up through Relay.OnForward.
type Recorder struct {
	store *db.DB
	clock timeutil.Clock

	mu      sync.Mutex
	session db.Session
	next    int64
	dropped int64
}

// NewRecorder opens a session in store. fps and instruction describe the
// recording for downstream training tools; source names the relay host.
func NewRecorder(store *db.DB, fps float64, instruction, source string) (*Recorder, error) {
	return newRecorder(store, fps, instruction, source, timeutil.RealClock{})
}

func newRecorder(store *db.DB, fps float64, instruction, source string, clock timeutil.Clock) (*Recorder, error) {
	session, err := store.CreateSession(fps, instruction, source, clock.Now())
	if err != nil {
		return nil, err
	}
	monitoring.Logf("recorder: session %s started", session.ID)
	return &Recorder{store: store, clock: clock, session: session}, nil
}

// SessionID returns the id of the session being recorded.
func (r *Recorder) SessionID() string {
	return r.session.ID
}

// Record parses payload and stores it as the next frame. Reset markers and
// payloads that are not teleop frames are skipped; the relay forwards them
// regardless, so a malformed message must not stop the recording.
func (r *Recorder) Record(payload []byte) {
	frame, reset, err := teleop.ParseMessage(payload)
	if err != nil || reset {
		if err != nil {
			r.mu.Lock()
			r.dropped++
			dropped := r.dropped
			r.mu.Unlock()
			if dropped == 1 {
				monitoring.Logf("recorder: skipping unparseable payload: %v", err)
			}
		}
		return
	}

	r.mu.Lock()
	idx := r.next
	r.next++
	r.mu.Unlock()

	row := db.Frame{
		SessionID: r.session.ID,
		Index:     idx,
		T:         frame.T,
		RecvAt:    r.clock.Now(),
		X:         frame.Position[0],
		Y:         frame.Position[1],
		Z:         frame.Position[2],
		Roll:      frame.Orientation[0],
		Pitch:     frame.Orientation[1],
		Yaw:       frame.Orientation[2],
		Gripper:   frame.Gripper,
	}
	if err := r.store.AppendFrame(row); err != nil {
		monitoring.Logf("recorder: append frame %d: %v", idx, err)
	}
}

// Close ends the session and logs the final frame count.
func (r *Recorder) Close() error {
	count, err := r.store.EndSession(r.session.ID, r.clock.Now())
	if err != nil {
		return err
	}
	elapsed := r.clock.Now().Sub(r.session.StartedAt).Round(time.Second)
	monitoring.Logf("recorder: session %s closed, %d frames over %v", r.session.ID, count, elapsed)
	return nil
}
