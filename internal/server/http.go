package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/fieldsync/internal/logging"
	"github.com/muurk/fieldsync/internal/protocol"
)

var (
	// ErrNotUpgrade means the request is not a complete WebSocket upgrade
	// request and should be served as ordinary content.
	ErrNotUpgrade = errors.New("not a websocket upgrade request")

	// ErrBadVersion means the client asked for a WebSocket version other than 13.
	ErrBadVersion = errors.New("unsupported websocket version")
)

// headerHasToken reports whether a comma separated header contains token,
// compared case-insensitively.
func headerHasToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// ValidateUpgradeRequest checks if the incoming HTTP request is a valid
// WebSocket upgrade. A request that lacks any part of an upgrade (GET,
// Upgrade: websocket, Connection: upgrade, Sec-WebSocket-Key) yields an error
// wrapping ErrNotUpgrade. A complete upgrade for a version other than 13
// yields ErrBadVersion.
func ValidateUpgradeRequest(req *http.Request) error {
	// Check method
	if req.Method != http.MethodGet {
		return fmt.Errorf("%w: method %s", ErrNotUpgrade, req.Method)
	}

	// Check Upgrade header
	if !headerHasToken(req.Header, "Upgrade", "websocket") {
		return fmt.Errorf("%w: Upgrade header %q", ErrNotUpgrade, req.Header.Get("Upgrade"))
	}

	// Check Connection header
	if !headerHasToken(req.Header, "Connection", "upgrade") {
		return fmt.Errorf("%w: Connection header %q", ErrNotUpgrade, req.Header.Get("Connection"))
	}

	// Sec-WebSocket-Key is required (but we don't validate the value)
	if strings.TrimSpace(req.Header.Get("Sec-WebSocket-Key")) == "" {
		return fmt.Errorf("%w: missing Sec-WebSocket-Key header", ErrNotUpgrade)
	}

	// Sec-WebSocket-Version is optional, but if present it must be 13
	if version := req.Header.Get("Sec-WebSocket-Version"); version != "" && strings.TrimSpace(version) != protocol.WebSocketVersion {
		return fmt.Errorf("%w: %q", ErrBadVersion, version)
	}

	return nil
}

// WriteSwitchingProtocols writes the 101 response completing the handshake.
// No extensions or subprotocols are negotiated.
func WriteSwitchingProtocols(w io.Writer, acceptKey string) error {
	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey + "\r\n" +
		"\r\n"

	logging.LogRawBytes("HTTP 101 Response", []byte(response))

	if _, err := io.WriteString(w, response); err != nil {
		return fmt.Errorf("failed to write HTTP 101 response: %w", err)
	}
	return nil
}

// Upgrade validates req, answers it with 101 Switching Protocols and returns
// the message stream for the connection. br must be the reader req was parsed
// from. On validation failure nothing is written.
func Upgrade(conn net.Conn, br *bufio.Reader, req *http.Request, opts protocol.ConnOptions) (*protocol.Conn, error) {
	if err := ValidateUpgradeRequest(req); err != nil {
		return nil, err
	}

	accept := protocol.AcceptKey(strings.TrimSpace(req.Header.Get("Sec-WebSocket-Key")))
	if err := WriteSwitchingProtocols(conn, accept); err != nil {
		return nil, err
	}

	return protocol.NewConn(conn, br, opts), nil
}

// writeUpgradeError rejects a failed upgrade attempt with a plain response.
func writeUpgradeError(w io.Writer, err error) (int, error) {
	status := http.StatusBadRequest
	header := http.Header{}
	if errors.Is(err, ErrBadVersion) {
		status = http.StatusUpgradeRequired
		header.Set("Sec-WebSocket-Version", protocol.WebSocketVersion)
	}
	header.Set("Connection", "close")
	return status, writeResponse(w, status, header, []byte(http.StatusText(status)+"\n"), true)
}

// writeResponse writes a complete HTTP/1.1 response. For HEAD requests
// only the headers are written, with the Content-Length of body.
func writeResponse(w io.Writer, status int, header http.Header, body []byte, withBody bool) error {
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: int64(len(body)),
	}
	if withBody {
		resp.Body = io.NopCloser(bytes.NewReader(body))
	} else {
		resp.Request = &http.Request{Method: http.MethodHead}
	}

	bw := bufio.NewWriter(w)
	if err := resp.Write(bw); err != nil {
		return fmt.Errorf("write %d response: %w", status, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %d response: %w", status, err)
	}
	return nil
}

// LogHTTPRequestDetails logs all details of an HTTP request
func LogHTTPRequestDetails(req *http.Request, remoteAddr string) {
	headers := make(map[string]string)
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}

	logging.LogHTTPRequest(remoteAddr, req.Method, req.URL.Path, headers)

	if req.Header.Get("Upgrade") == "" {
		return
	}

	// Log specific WebSocket headers at debug level
	logging.Debug("WebSocket upgrade request details",
		zap.String("remote_addr", remoteAddr),
		zap.String("host", req.Host),
		zap.String("origin", req.Header.Get("Origin")),
		zap.String("sec_websocket_key", req.Header.Get("Sec-WebSocket-Key")),
		zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
		zap.String("sec_websocket_protocol", req.Header.Get("Sec-WebSocket-Protocol")),
		zap.String("user_agent", req.Header.Get("User-Agent")),
	)
}
