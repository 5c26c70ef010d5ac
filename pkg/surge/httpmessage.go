package surge

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// Request is the parsed HTTP request handed to an HTTPHandler. It wraps
// the fasthttp request the HTTP session parsed directly off the wire —
// no fasthttp.Server is involved, the session owns the raw net.Conn
// itself (see httpsession.go) and only borrows fasthttp's RFC 7230
// parser.
type Request struct {
	raw *fasthttp.Request
}

// Method returns the HTTP method, e.g. "GET".
func (r *Request) Method() string { return string(r.raw.Header.Method()) }

// Target returns the request-target as sent on the wire, e.g.
// "/chat?room=1".
func (r *Request) Target() string { return string(r.raw.URI().RequestURI()) }

// Path returns the request target's path component, without query
// string.
func (r *Request) Path() string { return string(r.raw.URI().Path()) }

// Header returns the named header's value, or "" if absent.
func (r *Request) Header(name string) string { return string(r.raw.Header.Peek(name)) }

// Body returns the request body bytes.
func (r *Request) Body() []byte { return r.raw.Body() }

// IsUpgrade reports whether the request carries an
// "Upgrade: websocket" token, the HTTP session's trigger for handing the
// connection to the WebSocket layer.
func (r *Request) IsUpgrade() bool {
	return strings.EqualFold(string(r.raw.Header.Peek("Upgrade")), "websocket") &&
		strings.Contains(strings.ToLower(string(r.raw.Header.Peek("Connection"))), "upgrade")
}

// KeepAlive reports whether the request asked to keep the connection
// open (HTTP/1.1 default, unless an explicit "Connection: close" is
// present).
func (r *Request) KeepAlive() bool {
	return !r.raw.ConnectionClose()
}

// Response is what an HTTPHandler builds and hands to its ResponseSink.
// Exactly one Response flows through the sink per request; the HTTP
// session appends it to the pipeline's response queue in arrival order.
type Response struct {
	raw        *fasthttp.Response
	closeAfter bool
}

// NewResponse creates a Response with the given status code and body.
func NewResponse(statusCode int, contentType string, body []byte) *Response {
	resp := &fasthttp.Response{}
	resp.SetStatusCode(statusCode)
	resp.Header.SetContentType(contentType)
	resp.SetBody(body)
	return &Response{raw: resp}
}

// SetHeader sets a response header.
func (r *Response) SetHeader(name, value string) *Response {
	r.raw.Header.Set(name, value)
	return r
}

// CloseAfterWrite marks the response as connection-closing: once written,
// the HTTP session half-closes the socket and erases itself instead of
// pipelining another read.
func (r *Response) CloseAfterWrite() *Response {
	r.closeAfter = true
	r.raw.SetConnectionClose()
	return r
}
