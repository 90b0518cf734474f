package observerproto

import "terraforge.ai/internal/terrain/pipeline"

// Version is the progress feed protocol version.
const Version = "0.1"

const (
	TypeHello    = "HELLO"
	TypeProgress = "PROGRESS"
	TypeDone     = "DONE"
)

// Client -> Server. Optional first message; the server also accepts a
// silent client.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// Server -> Client. Sent once on connect.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Seed            int64  `json:"seed"`
	TotalStages     int    `json:"total_stages"`
}

// Server -> Client. Sent at every pipeline checkpoint.
type ProgressMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	RunID           string            `json:"run_id"`
	Progress        pipeline.Progress `json:"progress"`
}

// Server -> Client. Sent when the run ends, successfully or not.
type DoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
	Placements      int    `json:"placements"`
	HeightsDigest   string `json:"heights_digest,omitempty"`
}

// HTTP response for GET /progress.
type StatusResponse struct {
	ProtocolVersion string             `json:"protocol_version"`
	RunID           string             `json:"run_id"`
	Seed            int64              `json:"seed"`
	Last            *pipeline.Progress `json:"last,omitempty"`
	Done            *DoneMsg           `json:"done,omitempty"`
	Observers       int                `json:"observers"`
}
