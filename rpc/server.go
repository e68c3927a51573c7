// Copyright (c) 2017-2020 The randchain developers

// Package rpc provides the administrative HTTP API of the node.  The surface
// is read-only apart from block submission and is meant for operators and
// beacon consumers, not for untrusted exposure.
package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/params"
	"github.com/randchain/randchaind/services/blkmgr"
	"github.com/randchain/randchaind/services/random"
	"github.com/randchain/randchaind/version"
)

// shutdownTimeout is how long in-flight requests get to finish when the
// server stops.
const shutdownTimeout = 5 * time.Second

// Config is the rpc server configuration.
type Config struct {
	// Listen is the host:port the HTTP server binds.
	Listen string

	// BlockManager supplies chain and peer state.  Required.
	BlockManager *blkmgr.BlockManager

	// Feed serves beacon outputs.  Required.
	Feed *random.Feed

	// Params identifies the network for getinfo.  Required.
	Params *params.Params
}

// Server is the administrative HTTP server.
type Server struct {
	started  int32
	shutdown int32

	cfg    Config
	router *mux.Router
	http   *http.Server
	wg     sync.WaitGroup
}

// NewServer returns a new rpc server with its routes registered but not yet
// listening.
func NewServer(cfg *Config) *Server {
	s := &Server{cfg: *cfg}

	r := mux.NewRouter()
	r.HandleFunc("/v1/getinfo", s.handleGetInfo).Methods(http.MethodGet)
	r.HandleFunc("/v1/getbestblockhash", s.handleGetBestBlockHash).Methods(http.MethodGet)
	r.HandleFunc("/v1/getblockcount", s.handleGetBlockCount).Methods(http.MethodGet)
	r.HandleFunc("/v1/getblock/{hash}", s.handleGetBlock).Methods(http.MethodGet)
	r.HandleFunc("/v1/getpeers", s.handleGetPeers).Methods(http.MethodGet)
	r.HandleFunc("/v1/randomness/latest", s.handleRandomnessLatest).Methods(http.MethodGet)
	r.HandleFunc("/v1/randomness/{height:[0-9]+}", s.handleRandomness).Methods(http.MethodGet)
	s.router = r

	s.http = &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}
	return s
}

// Router exposes the route table so tests can drive handlers without a
// listening socket.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving on the configured listen address.
func (s *Server) Start() {
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	log.Infof("RPC server listening on %s", s.cfg.Listen)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			log.Errorf("RPC server exited: %v", err)
		}
	}()
}

// Stop gracefully shuts the server down, letting in-flight requests finish.
func (s *Server) Stop() error {
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		log.Warnf("RPC server is already in the process of shutting down")
		return nil
	}

	log.Infof("RPC server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// infoResult is the getinfo reply.
type infoResult struct {
	Version       string `json:"version"`
	Network       string `json:"network"`
	BestBlockHash string `json:"bestblockhash"`
	Blocks        uint64 `json:"blocks"`
	HeaderHeight  uint64 `json:"headerheight"`
	SyncState     string `json:"syncstate"`
	Peers         int    `json:"peers"`
	Orphans       uint64 `json:"orphans"`
}

// blockResult is the getblock reply.
type blockResult struct {
	Hash       string `json:"hash"`
	ParentRoot string `json:"parentroot"`
	Height     uint64 `json:"height"`
	Version    uint32 `json:"version"`
	Bits       uint32 `json:"bits"`
	Timestamp  int64  `json:"timestamp"`
	Iterations uint32 `json:"iterations"`
	PubKey     string `json:"pubkey"`
	Solution   string `json:"solution"`
	MainChain  bool   `json:"mainchain"`
}

// randomnessResult is the randomness reply.
type randomnessResult struct {
	Height     uint64 `json:"height"`
	Randomness string `json:"randomness"`
}

type errorResult struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Failed to encode rpc reply: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &errorResult{Error: msg})
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	chain := s.cfg.BlockManager.GetChain()
	best := chain.BestSnapshot()
	_, headerHeight := chain.BestHeaderSnapshot()

	writeJSON(w, http.StatusOK, &infoResult{
		Version:       version.String(),
		Network:       s.cfg.Params.Name,
		BestBlockHash: best.Hash.String(),
		Blocks:        best.Height,
		HeaderHeight:  headerHeight,
		SyncState:     s.cfg.BlockManager.SyncState().String(),
		Peers:         len(s.cfg.BlockManager.ConnectedPeers()),
		Orphans:       uint64(chain.GetOrphansTotal()),
	})
}

func (s *Server) handleGetBestBlockHash(w http.ResponseWriter, r *http.Request) {
	best := s.cfg.BlockManager.GetChain().BestSnapshot()
	writeJSON(w, http.StatusOK, best.Hash.String())
}

func (s *Server) handleGetBlockCount(w http.ResponseWriter, r *http.Request) {
	best := s.cfg.BlockManager.GetChain().BestSnapshot()
	writeJSON(w, http.StatusOK, best.Height)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	blockHash, err := hash.NewHashFromStr(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed block hash")
		return
	}

	chain := s.cfg.BlockManager.GetChain()
	block, err := chain.BlockByHash(blockHash)
	if err != nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}

	header := block.Block().Header
	writeJSON(w, http.StatusOK, &blockResult{
		Hash:       blockHash.String(),
		ParentRoot: header.ParentRoot.String(),
		Height:     header.Height,
		Version:    header.Version,
		Bits:       header.Bits,
		Timestamp:  header.Timestamp.Unix(),
		Iterations: header.Iterations,
		PubKey:     hexString(header.PubKey[:]),
		Solution:   hexString(header.Solution),
		MainChain:  chain.MainChainHasBlock(blockHash),
	})
}

func (s *Server) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	infos := s.cfg.BlockManager.ConnectedPeers()
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleRandomness(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed height")
		return
	}

	out, err := s.cfg.Feed.RandomnessAt(height)
	if err == random.ErrNotCommitted {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &randomnessResult{
		Height:     height,
		Randomness: hexString(out[:]),
	})
}

func (s *Server) handleRandomnessLatest(w http.ResponseWriter, r *http.Request) {
	out, height, err := s.cfg.Feed.Latest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &randomnessResult{
		Height:     height,
		Randomness: hexString(out[:]),
	})
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}
