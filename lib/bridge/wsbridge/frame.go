package wsbridge

import "encoding/json"

// Frame kinds exchanged over the socket.
const (
	kindInvoke   = "invoke"
	kindReply    = "reply"
	kindListen   = "listen"
	kindUnlisten = "unlisten"
	kindEvent    = "event"
)

// frame is one WebSocket text message. Data carries codec-encoded bytes and
// is base64 in the JSON framing.
type frame struct {
	Kind     string `json:"kind"`
	ID       uint64 `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
	Error    string `json:"error,omitempty"`
}

func encodeFrame(f frame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	err := json.Unmarshal(data, &f)
	return f, err
}
