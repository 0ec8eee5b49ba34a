// Package protocol implements the fieldsync wire protocol.
//
// It covers three layers used by the server and by clients:
//   - The WebSocket opening handshake accept-key computation (RFC 6455 section 4.2.2)
//   - WebSocket framing: frame parsing, masking, building, and a server side
//     Conn that reassembles fragments and answers ping and close frames
//   - The JSON message vocabulary exchanged once a connection is upgraded
//
// # Message Format
//
// Every application message is a single JSON object with a "type"
// discriminator followed by the variant's fields:
//
//	{"type":"Move","x":120.5,"y":40}
//	{"type":"PlayerMoved","player_id":"6f1c...","x":120.5,"y":40}
//
// Client messages are Join, Move, Chat and ChangeNick. Server messages are
// Welcome, PlayerJoined, PlayerLeft, PlayerMoved, ChatMessage and Error.
// Both sets are closed: code that needs to react to every variant implements
// ClientHandler or ServerHandler and dispatches with Accept, so adding a
// variant breaks the build until every handler covers it.
//
// # Usage Example - Server Side
//
//	conn := protocol.NewConn(netConn, reader, protocol.ConnOptions{})
//	opcode, payload, err := conn.ReadMessage()
//	if err != nil {
//	    return err
//	}
//	msg, err := protocol.DecodeClientMessage(payload)
//	if err != nil {
//	    // malformed input is reported, never fatal
//	}
//
// # Error Handling
//
// The package distinguishes between:
//   - Decode errors: *DecodeError wrapping ErrMalformed or ErrUnknownType
//   - Framing errors: ErrProtocolViolation and ErrFrameTooLarge
//   - Peer closes: *CloseError, returned after the close has been echoed
//
// # Thread Safety
//
// Encoding and decoding functions are stateless. A Conn allows one reader
// and any number of concurrent writers.
package protocol
