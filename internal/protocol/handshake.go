package protocol

import (
	"crypto/sha1"
	"encoding/base64"
)

// HandshakeGUID is the fixed value RFC 6455 appends to the client key before
// hashing.
const HandshakeGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// WebSocketVersion is the only protocol version the server speaks.
const WebSocketVersion = "13"

// AcceptKey derives the Sec-WebSocket-Accept value for a client's
// Sec-WebSocket-Key: base64(SHA-1(key + HandshakeGUID)).
// The key is opaque; it is not decoded or validated.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(HandshakeGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
