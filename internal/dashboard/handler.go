package dashboard

import (
	"encoding/json"
	"time"

	"github.com/tidemark/tidemark/internal/syncer"
)

// Notifier translates sync run events into dashboard broadcasts.
type Notifier struct {
	server *Server
}

// NewNotifier creates a notifier that broadcasts through the given server.
func NewNotifier(server *Server) *Notifier {
	return &Notifier{server: server}
}

// SyncStarted broadcasts the beginning of a sync run.
func (n *Notifier) SyncStarted() {
	n.server.Broadcast(Message{Type: MessageTypeSyncStarted})
}

// ProgressFunc returns a callback suitable for syncer.Config.OnProgress.
func (n *Notifier) ProgressFunc() syncer.ProgressFunc {
	return func(current, total int, firstSync bool) {
		data, err := json.Marshal(ProgressData{
			Current:   current,
			Total:     total,
			FirstSync: firstSync,
		})
		if err != nil {
			return
		}
		n.server.Broadcast(Message{
			Type: MessageTypeSyncProgress,
			Data: data,
		})
	}
}

// SyncFinished broadcasts the outcome of a completed sync run. A non-nil
// runErr turns the message into a failure frame; a partial result is still
// included when available.
func (n *Notifier) SyncFinished(result *syncer.Result, runErr error, elapsed time.Duration) {
	payload := RunData{Duration: elapsed.Round(time.Millisecond).String()}
	if result != nil {
		payload.LocalVersion = result.LocalVersion
		payload.RemoteVersion = result.RemoteVersion
		payload.Inserted = result.Pull.Inserted
		payload.Updated = result.Pull.Updated
		payload.Skipped = result.Pull.Skipped
		payload.Pushed = result.Pushed
		payload.Rejected = result.Rejected
	}

	msgType := MessageTypeSyncComplete
	if runErr != nil {
		msgType = MessageTypeSyncFailed
		payload.Error = runErr.Error()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	n.server.Broadcast(Message{Type: msgType, Data: data})
}

// Stats broadcasts current store statistics.
func (n *Notifier) Stats(tasks, dirty int, lastSyncAt time.Time) {
	data, err := json.Marshal(StatsData{
		Tasks:      tasks,
		Dirty:      dirty,
		LastSyncAt: lastSyncAt,
	})
	if err != nil {
		return
	}
	n.server.Broadcast(Message{Type: MessageTypeStats, Data: data})
}
