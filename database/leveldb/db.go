// Copyright (c) 2017-2020 The randchain developers

// Package leveldb implements the storage capability on top of goleveldb.
package leveldb

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/database"
)

// Key layout:
//   b + <hash>      -> serialized block body
//   m + <height BE> -> main chain block hash at height
//   t               -> tip hash (32 bytes) || tip height (8 bytes BE)
var (
	blockKeyPrefix = []byte("b")
	mainKeyPrefix  = []byte("m")
	tipKey         = []byte("t")
)

// store implements database.DB.
type store struct {
	mtx sync.RWMutex
	ldb *leveldb.DB
}

// NewDB opens (creating if necessary) a block store at the passed path.
// cacheSizeMiB tunes the leveldb block cache; zero selects the leveldb
// default.
func NewDB(path string, cacheSizeMiB int) (database.DB, error) {
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	if cacheSizeMiB > 0 {
		opts.BlockCacheCapacity = cacheSizeMiB * opt.MiB
	}
	ldb, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open block store at %s",
			path)
	}
	log.Infof("Block store opened at %s", path)
	return &store{ldb: ldb}, nil
}

func blockKey(h *hash.Hash) []byte {
	key := make([]byte, 1+hash.HashSize)
	copy(key, blockKeyPrefix)
	copy(key[1:], h[:])
	return key
}

func mainKey(height uint64) []byte {
	key := make([]byte, 1+8)
	copy(key, mainKeyPrefix)
	binary.BigEndian.PutUint64(key[1:], height)
	return key
}

// HasBlock reports whether the block body for the given hash is stored.
func (s *store) HasBlock(h *hash.Hash) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ok, err := s.ldb.Has(blockKey(h), nil)
	if err != nil {
		return false, errors.Wrap(err, "block existence check failed")
	}
	return ok, nil
}

// PutBlock stores a block body keyed by its hash.
func (s *store) PutBlock(block *types.SerializedBlock) error {
	raw, err := block.Bytes()
	if err != nil {
		return err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	err = s.ldb.Put(blockKey(block.Hash()), raw, nil)
	return errors.Wrapf(err, "failed to store block %s", block.Hash())
}

// FetchBlock retrieves a block body by hash.
func (s *store) FetchBlock(h *hash.Hash) (*types.SerializedBlock, error) {
	s.mtx.RLock()
	raw, err := s.ldb.Get(blockKey(h), nil)
	s.mtx.RUnlock()
	if err == leveldb.ErrNotFound {
		return nil, database.ErrBlockNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch block %s", h)
	}
	return types.NewBlockFromBytes(raw)
}

// CommitReorg atomically applies a tip switch using a leveldb write batch.
func (s *store) CommitReorg(disconnect, connect []*types.SerializedBlock) error {
	batch := new(leveldb.Batch)

	for _, block := range disconnect {
		batch.Delete(mainKey(block.Order()))
	}
	for _, block := range connect {
		raw, err := block.Bytes()
		if err != nil {
			return err
		}
		batch.Put(blockKey(block.Hash()), raw)
		batch.Put(mainKey(block.Order()), block.Hash().CloneBytes())
	}

	if len(connect) > 0 {
		tip := connect[len(connect)-1]
		val := make([]byte, hash.HashSize+8)
		copy(val, tip.Hash().CloneBytes())
		binary.BigEndian.PutUint64(val[hash.HashSize:], tip.Order())
		batch.Put(tipKey, val)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	err := s.ldb.Write(batch, &opt.WriteOptions{Sync: true})
	return errors.Wrap(err, "reorg commit failed")
}

// FetchTip retrieves the persisted active tip pointer.
func (s *store) FetchTip() (*database.TipState, error) {
	s.mtx.RLock()
	val, err := s.ldb.Get(tipKey, nil)
	s.mtx.RUnlock()
	if err == leveldb.ErrNotFound {
		return nil, database.ErrTipNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch tip")
	}
	if len(val) != hash.HashSize+8 {
		return nil, errors.Errorf("corrupt tip record of %d bytes",
			len(val))
	}
	tip := &database.TipState{
		Height: binary.BigEndian.Uint64(val[hash.HashSize:]),
	}
	copy(tip.Hash[:], val[:hash.HashSize])
	return tip, nil
}

// FetchMainChainHash returns the main chain block hash at a height.
func (s *store) FetchMainChainHash(height uint64) (*hash.Hash, error) {
	s.mtx.RLock()
	val, err := s.ldb.Get(mainKey(height), nil)
	s.mtx.RUnlock()
	if err == leveldb.ErrNotFound {
		return nil, database.ErrBlockNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch main chain hash "+
			"at %d", height)
	}
	return hash.NewHash(val)
}

// Close releases the underlying leveldb handle.
func (s *store) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.ldb.Close()
}
