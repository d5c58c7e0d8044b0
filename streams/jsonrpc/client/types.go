package client

import (
	"encoding/json"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
)

// Event types pushed by the snapshot stream.
const (
	EventFull = "full"
	EventDiff = "diff"
)

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// PatcherFunc applies a diff to the previous snapshot without mutating it.
type PatcherFunc func(prev *engine.Snapshot, diff *differ.SnapshotDiff) (*engine.Snapshot, error)
