package auth

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// OfferedProtocols returns the Sec-WebSocket-Protocol entries in order.
func OfferedProtocols(r *http.Request) []string {
	return websocket.Subprotocols(r)
}

// CredentialFromRequest extracts the bearer credential of a handshake.
// Browsers cannot set headers on websocket requests, so clients pass the
// token as the last sub-protocol after the protocol name. Otherwise the
// Authorization header and then the token query parameter are used.
func CredentialFromRequest(r *http.Request) string {
	if offered := OfferedProtocols(r); len(offered) > 1 {
		return offered[len(offered)-1]
	}

	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	return r.URL.Query().Get("token")
}
