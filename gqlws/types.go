package gqlws

// Protocol is the Sec-WebSocket-Protocol token of
// https://github.com/enisdenjo/graphql-ws/blob/master/PROTOCOL.md
const Protocol = "graphql-transport-ws"

const (
	// Client -> Server
	MsgTypeConnectionInit = "connection_init"
	MsgTypeSubscribe      = "subscribe"

	// Server -> Client
	MsgTypeConnectionAck = "connection_ack"
	MsgTypeNext          = "next"
	MsgTypeError         = "error"

	// Bidirectional
	MsgTypePing     = "ping"
	MsgTypePong     = "pong"
	MsgTypeComplete = "complete"
)
