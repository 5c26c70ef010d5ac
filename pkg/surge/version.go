package surge

const (
	// Version is the framework's semantic version, sent as the Server
	// header on every canonical HTTP response.
	Version = "0.1.0"

	// ServerHeader is the value of the Server header the HTTP session
	// attaches to canonical error responses.
	ServerHeader = "surge/" + Version
)
