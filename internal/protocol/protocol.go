package protocol

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "codeChange"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON value
}

// Client → service events.
const (
	EventJoin           = "join"
	EventLeaveRoom      = "leaveRoom"
	EventCodeChange     = "codeChange"
	EventTyping         = "typing"
	EventLanguageChange = "languageChange"
	EventCompileCode    = "compileCode"
)

// Service → client events.
const (
	EventUserJoined     = "userJoined"
	EventCodeUpdate     = "codeUpdate"
	EventUserTyping     = "userTyping"
	EventLanguageUpdate = "languageUpdate"
	EventCodeResponse   = "codeResponse"
)

// ──────────────────────────── Request DTOs ───────────────────────────────────

// JoinRequest is the body for "join".
type JoinRequest struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// CodeChangeRequest is the body for "codeChange". Code is the whole
// buffer, not a diff.
type CodeChangeRequest struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// TypingRequest is the body for "typing".
type TypingRequest struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// LanguageChangeRequest is the body for "languageChange".
type LanguageChangeRequest struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

// CompileRequest is the body for "compileCode".
type CompileRequest struct {
	Code     string `json:"code"`
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
	Version  string `json:"version"`
}

// Empty ACK body (useful for many handlers).
type AckBody struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}

// ──────────────────────────── Outbound frames ────────────────────────────────

// RunResult carries the combined output of one remote execution.
type RunResult struct {
	Output string `json:"output"`
}

// CodeResponseBody is the body of "codeResponse".
type CodeResponseBody struct {
	Run RunResult `json:"run"`
}

// frame marshals an outbound envelope. The payloads below are plain
// strings, slices and small structs, so marshalling cannot fail.
func frame(event string, body any) []byte {
	raw, _ := json.Marshal(body)
	out, _ := json.Marshal(Envelope{Event: event, Body: raw})
	return out
}

// UserJoined carries the room's full member-name list in join order.
func UserJoined(names []string) []byte {
	if names == nil {
		names = []string{}
	}
	return frame(EventUserJoined, names)
}

// CodeUpdate carries the full buffer text.
func CodeUpdate(code string) []byte {
	return frame(EventCodeUpdate, code)
}

// UserTyping carries the display name of the member who typed.
func UserTyping(name string) []byte {
	return frame(EventUserTyping, name)
}

// LanguageUpdate carries the room's selected language id.
func LanguageUpdate(language string) []byte {
	return frame(EventLanguageUpdate, language)
}

// CodeResponse carries the combined output of one execution.
func CodeResponse(output string) []byte {
	return frame(EventCodeResponse, CodeResponseBody{Run: RunResult{Output: output}})
}

// Ack builds the "<event>-ack" reply for a handled inbound frame.
func Ack(event string, body any) []byte {
	if body == nil {
		return frame(event+"-ack", AckBody{})
	}
	return frame(event+"-ack", body)
}

// Error builds the {"event":"error"} reply.
func Error(msg string) []byte {
	return frame("error", ErrorBody{Error: msg})
}
