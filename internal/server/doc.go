// Package server accepts TCP or TLS connections and serves the fieldsync
// HTTP surface on them.
//
// Every connection is read as a sequence of HTTP/1.1 requests. A request
// for the WebSocket path that asks for an upgrade is answered with
//
//	HTTP/1.1 101 Switching Protocols\r\n
//	Upgrade: websocket\r\n
//	Connection: Upgrade\r\n
//	Sec-WebSocket-Accept: <token>\r\n
//	\r\n
//
// and the connection is handed to a session.Session subscribed to the
// shared broadcast bus. No extensions or subprotocols are negotiated.
//
// Every other request goes to the content responder: /healthz, /metrics
// (JSON counters) or a file from the static directory, falling back to
// index.html so client-side routes resolve. Keep-alive is honoured until
// the client sends Connection: close or the connection idles out.
//
// # Frame capture
//
// When a capture directory is configured every frame of every session is
// appended to a JSONL file:
//
//	{"timestamp":"...","message_num":1,"remote_addr":"10.0.0.5:53211",
//	 "direction":"client->server","frame_type":"text","opcode":1,
//	 "payload_length":15,"payload_text":"{\"type\":\"Join\"}"}
//
// ReadCaptureFile and Summarize read a capture back and decode each text
// frame with the vocabulary of its direction.
//
// # Shutdown
//
// SIGINT and SIGTERM stop the listener, close every session with status
// 1001 (going away) and wait up to ten seconds for connections to finish.
package server
