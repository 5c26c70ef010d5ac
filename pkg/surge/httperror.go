package surge

import "fmt"

// Canonical error responses the HTTP handler contract calls for: plain
// text/HTML bodies, a correct Content-Length (fasthttp fills that in from
// SetBody), and Connection semantics preserved rather than forced closed.
// blaze's equivalent (pkg/blaze/error.go) answers in JSON, because it is a
// JSON-API framework; this framework's HTTP surface is a thin pipeline in
// front of arbitrary handlers, so the canonical bodies follow spec.md §6's
// HTML requirement instead.

const htmlErrorTemplate = `<html><head><title>%d %s</title></head><body><h1>%d %s</h1><p>%s</p></body></html>`

func htmlError(status int, title, reason string) []byte {
	return []byte(fmt.Sprintf(htmlErrorTemplate, status, title, status, title, reason))
}

// BadRequest builds a 400 Bad Request response with reason in the body.
func BadRequest(reason string) *Response {
	return NewResponse(400, "text/html; charset=utf-8", htmlError(400, "Bad Request", reason)).
		SetHeader("Server", ServerHeader)
}

// NotFound builds a 404 Not Found response with reason in the body.
func NotFound(reason string) *Response {
	return NewResponse(404, "text/html; charset=utf-8", htmlError(404, "Not Found", reason)).
		SetHeader("Server", ServerHeader)
}

// InternalServerError builds a 500 Internal Server Error response with
// reason in the body.
func InternalServerError(reason string) *Response {
	return NewResponse(500, "text/html; charset=utf-8", htmlError(500, "Internal Server Error", reason)).
		SetHeader("Server", ServerHeader)
}
