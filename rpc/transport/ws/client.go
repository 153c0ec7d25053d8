package ws

import (
	"context"
	"fmt"
	"strings"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/gorilla/websocket"
)

// NewWSClientTransport creates a new websocket client transport
func NewWSClientTransport() transport.IRPCClientTransport {
	return &wsClientTransport{}
}

type wsClientTransport struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *wsClientTransport) Dial(ctx context.Context, config common.ClientConfig) (transport.IConn, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint provided")
	}
	url := endpointURL(config.Endpoint)

	dialer := websocket.Dialer{
		HandshakeTimeout: config.Timeout(),
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s (http %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	Logger.Infof("Connected to %s using websocket transport", url)
	return newConn(conn, config.FrameLimit(), 0), nil
}

// endpointURL adds the ws:// scheme to a plain host:port endpoint
func endpointURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint
	}
	return "ws://" + endpoint
}
