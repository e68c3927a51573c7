// Copyright (c) 2017-2020 The randchain developers

package message

// Commands used in message headers which describe the type of message.
const (
	CmdInv        = "inv"
	CmdGetData    = "getdata"
	CmdGetHeaders = "getheaders"
	CmdHeaders    = "headers"
	CmdBlock      = "block"
)

// Message is the common contract of all protocol messages the sync engine
// exchanges with the network capability.  The wire encoding is owned by the
// transport; the engine only cares about the semantic payload.
type Message interface {
	Command() string
}
