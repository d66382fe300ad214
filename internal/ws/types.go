package ws

const (
	// client - server
	MsgSubscribe      = "subscribe"
	MsgMove           = "move"
	MsgRematch        = "rematch"
	MsgDeclineRematch = "decline_rematch"
	MsgPing           = "ping"

	// server - client
	MsgReady    = "ready"
	MsgEvent    = "event"
	MsgSnapshot = "snapshot"
	MsgPong     = "pong"
	MsgError    = "error"
)
