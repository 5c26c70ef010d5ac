package surge

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
)

// websocketMagicGUID is the fixed GUID RFC 6455 §1.3 defines for deriving
// Sec-WebSocket-Accept from the client's Sec-WebSocket-Key.
const websocketMagicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// acceptKey computes the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key.
func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketMagicGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// writeUpgradeResponse validates the upgrade request's required headers
// and writes the RFC 6455 "101 Switching Protocols" response directly to
// bw. The HTTP session already parsed req off the wire using fasthttp; no
// fasthttp.Server/RequestCtx is involved, so the handshake response is
// written by hand here rather than through fasthttp's upgrader.
func writeUpgradeResponse(bw *bufio.Writer, req *fasthttp.Request) error {
	key := string(req.Header.Peek("Sec-WebSocket-Key"))
	if key == "" {
		return errors.New("missing Sec-WebSocket-Key")
	}

	if _, err := fmt.Fprintf(bw, "HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	headers := []string{
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + acceptKey(key),
	}
	if proto := req.Header.Peek("Sec-WebSocket-Protocol"); len(proto) > 0 {
		headers = append(headers, "Sec-WebSocket-Protocol: "+string(proto))
	}
	for _, h := range headers {
		if _, err := fmt.Fprintf(bw, "%s\r\n", h); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(bw, "\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}
