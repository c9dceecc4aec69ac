package protocol

import "pixelcraft.ai/internal/blocks"

// CONVERT (client -> server)
type ConvertMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`

	Format string `json:"format"`
	Axis   string `json:"axis,omitempty"`
	Name   string `json:"name,omitempty"`

	// Frames are base64 encoded PNG/JPEG/GIF files, in depth order. A GIF
	// contributes all of its frames.
	Frames []string `json:"frames"`

	// Palette replaces the server's block catalog for this request.
	Palette []blocks.BlockSpec `json:"palette,omitempty"`
}

// PROGRESS (server -> client)
type ProgressMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Stage           string `json:"stage"`
	Done            int    `json:"done"`
	Total           int    `json:"total"`
}

// Conversion stages reported in PROGRESS.
const (
	StageDecode = "DECODE"
	StageBuild  = "BUILD"
	StageEncode = "ENCODE"
)

// RESULT (server -> client)
type ResultMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ReqID           string      `json:"req_id,omitempty"`
	Filename        string      `json:"filename"`
	Data            string      `json:"data"`
	Stats           ResultStats `json:"stats"`
}

type ResultStats struct {
	Size        [3]int `json:"size"`
	PaletteLen  int    `json:"palette_len"`
	Bytes       int    `json:"bytes"`
	UsedDefault bool   `json:"used_default,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(reqID, code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ReqID: reqID, Code: code, Message: message}
}

// JobStatus is the HTTP view of a background conversion.
type JobStatus struct {
	JobID      string `json:"job_id"`
	State      string `json:"state"`
	Format     string `json:"format"`
	Axis       string `json:"axis,omitempty"`
	Size       [3]int `json:"size,omitempty"`
	PaletteLen int    `json:"palette_len,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`
	Output     string `json:"output,omitempty"`
	MirrorKey  string `json:"mirror_key,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}
