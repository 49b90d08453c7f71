package ws

// Control frames exchanged directly between a client and the hub. Everything
// else on the wire is an event.Event fanned out by the core.
const (
	frameTypePing  = "ping"
	frameTypePong  = "pong"
	frameTypeError = "error"
)

type clientFrame struct {
	Type string `json:"type"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
