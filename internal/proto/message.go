package proto

// Message type tags as they appear on the wire.
const (
	TypeLogin    = "login"
	TypeRegister = "register"

	TypeAuthResponse = "auth_response"
	TypeAuthSuccess  = "auth_success"

	TypeMessage       = "message"
	TypeSystem        = "system"
	TypeFileAvailable = "file_available"
	TypeCall          = "call"
	TypeQuit          = "quit"

	TypeUpload       = "upload"
	TypeUploadOK     = "upload_ok"
	TypeDownload     = "download"
	TypeDownloadMeta = "download_meta"
	TypeError        = "error"
)

// Call actions carried by CallAction.
const (
	CallStart = "start"
	CallStop  = "stop"
)

// AuthRequest is the first frame on a chat connection. Type is either
// TypeLogin or TypeRegister.
type AuthRequest struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse carries the provider's verdict.
type AuthResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AuthSuccess confirms the accepted identity. Sent only after a
// successful AuthResponse.
type AuthSuccess struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// ChatMessage is a text message. Clients send it without From; the
// server re-tags it with the sender's identity before fan-out.
type ChatMessage struct {
	Type string `json:"type"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// SystemMessage announces session events such as joins and departures.
type SystemMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FileAvailable announces an uploaded file on the chat channel. Purely
// informational; the file index is not consulted.
type FileAvailable struct {
	Type     string `json:"type"`
	From     string `json:"from,omitempty"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	FileID   string `json:"file_id"`
}

// CallAction signals a video call starting or stopping.
type CallAction struct {
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	Action string `json:"action"`
}

// Quit asks the server to end the chat session.
type Quit struct {
	Type string `json:"type"`
}

// UploadRequest precedes exactly Size raw bytes on the file channel.
type UploadRequest struct {
	Type     string `json:"type"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// UploadOK acknowledges a fully persisted upload.
type UploadOK struct {
	Type string `json:"type"`
}

// DownloadRequest asks for the content bound to FileID.
type DownloadRequest struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
}

// DownloadMeta precedes exactly Size raw bytes on the file channel.
type DownloadMeta struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ErrorMessage reports a request-level failure to the peer.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
