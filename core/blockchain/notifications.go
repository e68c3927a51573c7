// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various chain events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// BlockAccepted indicates the associated block was accepted into the
	// block tree.  Note that this does not necessarily mean it was added
	// to the main chain.
	BlockAccepted NotificationType = iota

	// BlockConnected indicates the associated block was connected to the
	// main chain.
	BlockConnected

	// BlockDisconnected indicates the associated block was disconnected
	// from the main chain during a reorganization.
	BlockDisconnected

	// NewChainTip indicates the active tip moved.  It fires exactly once
	// per tip switch, after the whole disconnect/connect set has been
	// committed.
	NewChainTip

	// Reorganization indicates the active chain switched branches.
	Reorganization
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	BlockAccepted:     "BlockAccepted",
	BlockConnected:    "BlockConnected",
	BlockDisconnected: "BlockDisconnected",
	NewChainTip:       "NewChainTip",
	Reorganization:    "Reorganization",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// BlockAcceptedNotifyData is the structure for data indicating a new block
// was accepted into the block tree.
type BlockAcceptedNotifyData struct {
	// Block is the block that was accepted.
	Block *types.SerializedBlock

	// IsMainChain reports whether the block landed on the active chain.
	IsMainChain bool
}

// NewChainTipNotifyData is the structure for data indicating the active tip
// moved.
type NewChainTipNotifyData struct {
	// Hash is the new best block identity.
	Hash hash.Hash

	// Height is the new best block height.
	Height uint64
}

// ReorganizationNotifyData is the structure for data indicating the active
// chain switched branches.
type ReorganizationNotifyData struct {
	OldHash   hash.Hash
	OldHeight uint64
	NewHash   hash.Hash
	NewHeight uint64
}

// Notification defines notification that is sent to the caller via the
// callback function provided during the call to New and consists of a
// notification type as well as associated data that depends on the type as
// follows:
//   - BlockAccepted:     *BlockAcceptedNotifyData
//   - BlockConnected:    *types.SerializedBlock
//   - BlockDisconnected: *types.SerializedBlock
//   - NewChainTip:       *NewChainTipNotifyData
//   - Reorganization:    *ReorganizationNotifyData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// sendNotification sends a notification with the passed type and data if the
// caller requested notifications by providing a callback function in the
// call to New.
func (b *BlockChain) sendNotification(typ NotificationType, data interface{}) {
	if b.notifications == nil {
		return
	}
	b.notifications(&Notification{Type: typ, Data: data})
}
