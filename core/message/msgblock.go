// Copyright (c) 2017-2020 The randchain developers

package message

import (
	"fmt"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
)

// MaxBlockHeadersPerMsg is the maximum number of block headers that can be in
// a single headers message.
const MaxBlockHeadersPerMsg = 2000

// MaxBlockLocatorsPerMsg is the maximum number of block locator hashes allowed
// per message.
const MaxBlockLocatorsPerMsg = 500

// MsgInv implements the Message interface and represents an inv message.  It
// is used to advertise a peer's known data.
type MsgInv struct {
	InvList []*InvVect
}

// AddInvVect adds an inventory vector to the message.
func (msg *MsgInv) AddInvVect(iv *InvVect) error {
	if len(msg.InvList)+1 > MaxInvPerMsg {
		return fmt.Errorf("too many invvect in message [max %v]",
			MaxInvPerMsg)
	}
	msg.InvList = append(msg.InvList, iv)
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgInv) Command() string { return CmdInv }

// NewMsgInv returns a new inv message that conforms to the Message interface.
func NewMsgInv() *MsgInv {
	return &MsgInv{InvList: make([]*InvVect, 0, 16)}
}

// MsgGetData implements the Message interface and represents a getdata
// message.  It is used to request data such as blocks already advertised by
// an inv message.
type MsgGetData struct {
	InvList []*InvVect
}

// AddInvVect adds an inventory vector to the message.
func (msg *MsgGetData) AddInvVect(iv *InvVect) error {
	if len(msg.InvList)+1 > MaxInvPerMsg {
		return fmt.Errorf("too many invvect in message [max %v]",
			MaxInvPerMsg)
	}
	msg.InvList = append(msg.InvList, iv)
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgGetData) Command() string { return CmdGetData }

// NewMsgGetData returns a new getdata message that conforms to the Message
// interface.
func NewMsgGetData() *MsgGetData {
	return &MsgGetData{InvList: make([]*InvVect, 0, 16)}
}

// MsgGetHeaders implements the Message interface and represents a getheaders
// message.  It requests the batch of headers after the most recent locator
// hash the remote peer recognizes, up to the optional stop hash.
type MsgGetHeaders struct {
	BlockLocatorHashes []*hash.Hash
	HashStop           hash.Hash
}

// AddBlockLocatorHash adds a block locator hash to the message.
func (msg *MsgGetHeaders) AddBlockLocatorHash(h *hash.Hash) error {
	if len(msg.BlockLocatorHashes)+1 > MaxBlockLocatorsPerMsg {
		return fmt.Errorf("too many block locator hashes in message "+
			"[max %v]", MaxBlockLocatorsPerMsg)
	}
	msg.BlockLocatorHashes = append(msg.BlockLocatorHashes, h)
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgGetHeaders) Command() string { return CmdGetHeaders }

// NewMsgGetHeaders returns a new getheaders message that conforms to the
// Message interface.
func NewMsgGetHeaders() *MsgGetHeaders {
	return &MsgGetHeaders{
		BlockLocatorHashes: make([]*hash.Hash, 0, MaxBlockLocatorsPerMsg),
	}
}

// MsgHeaders implements the Message interface and represents a headers
// message.  It delivers a batch of block headers in response to getheaders.
type MsgHeaders struct {
	Headers []*types.BlockHeader
}

// AddBlockHeader adds a block header to the message.
func (msg *MsgHeaders) AddBlockHeader(bh *types.BlockHeader) error {
	if len(msg.Headers)+1 > MaxBlockHeadersPerMsg {
		return fmt.Errorf("too many block headers in message [max %v]",
			MaxBlockHeadersPerMsg)
	}
	msg.Headers = append(msg.Headers, bh)
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgHeaders) Command() string { return CmdHeaders }

// NewMsgHeaders returns a new headers message that conforms to the Message
// interface.
func NewMsgHeaders() *MsgHeaders {
	return &MsgHeaders{Headers: make([]*types.BlockHeader, 0,
		MaxBlockHeadersPerMsg)}
}

// MsgBlock implements the Message interface and represents a block message.
// It delivers a single block body in response to getdata.
type MsgBlock struct {
	Block *types.Block
}

// Command returns the protocol command string for the message.
func (msg *MsgBlock) Command() string { return CmdBlock }

// NewMsgBlock returns a new block message that conforms to the Message
// interface.
func NewMsgBlock(block *types.Block) *MsgBlock {
	return &MsgBlock{Block: block}
}
