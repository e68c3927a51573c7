// Copyright (c) 2017-2020 The randchain developers

package message

import (
	"fmt"

	"github.com/randchain/randchaind/common/hash"
)

// MaxInvPerMsg is the maximum number of inventory vectors that can be in a
// single inv message.
const MaxInvPerMsg = 50000

// InvType represents the allowed types of inventory vectors.
type InvType uint32

// These constants define the various supported inventory vector types.
const (
	InvTypeError InvType = 0
	InvTypeBlock InvType = 1
)

// String returns the InvType in human-readable form.
func (invtype InvType) String() string {
	switch invtype {
	case InvTypeError:
		return "ERROR"
	case InvTypeBlock:
		return "MSG_BLOCK"
	}
	return fmt.Sprintf("Unknown InvType (%d)", uint32(invtype))
}

// InvVect defines an inventory vector which is used to describe data, as
// specified by the Type field, that a peer wants, has, or does not have to
// another peer.
type InvVect struct {
	Type InvType
	Hash hash.Hash
}

// NewInvVect returns a new InvVect using the provided type and hash.
func NewInvVect(typ InvType, h *hash.Hash) *InvVect {
	return &InvVect{
		Type: typ,
		Hash: *h,
	}
}

// String returns the inventory vector in human-readable form.
func (iv *InvVect) String() string {
	return fmt.Sprintf("%s:%s", iv.Type, iv.Hash)
}
