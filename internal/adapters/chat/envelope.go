package chat

// Envelope is the single JSON frame used in both directions. Exactly
// one intent field is set per message; inbound priority is
// join > ping > content.
type Envelope struct {
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`

	Join    bool   `json:"join,omitempty"`
	Leave   bool   `json:"leave,omitempty"`
	Ping    bool   `json:"ping,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`

	// Timestamp is stamped by the hub on every outbound frame.
	Timestamp int64 `json:"timestamp,omitempty"`
}
