// Package node assembles the oracle daemon: a simulated sequencer chain, the
// randomness engine over a persistent store, the HTTP RPC surface, and
// optional Prometheus instrumentation.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/romulus-oracle/romulus/core/chain"
	"github.com/romulus-oracle/romulus/engine"
	"github.com/romulus-oracle/romulus/pkg/config"
	"github.com/romulus-oracle/romulus/pkg/rpc/server"
	"github.com/romulus-oracle/romulus/pkg/store"
	"github.com/romulus-oracle/romulus/types"
)

const dbName = "romulus"

// Node connects all the components and orchestrates their work.
type Node struct {
	conf     config.Config
	logger   logging.EventLogger
	chain    *chain.Simulated
	engine   *engine.Engine
	store    store.Store
	identity common.Address
}

// NewNode wires a node from its configuration. Nodes started without a root
// directory and database path keep all state in memory.
func NewNode(conf config.Config) (*Node, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node configuration: %w", err)
	}
	if conf.Log.Level != "" {
		lvl, err := logging.LevelFromString(conf.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", conf.Log.Level, err)
		}
		logging.SetAllLoggers(lvl)
	}
	logger := logging.Logger("node")

	var baseKV = store.NewDefaultInMemoryKVStore()
	if conf.RootDir == "" && conf.DBPath == "" {
		logger.Info("WARNING: working in in-memory mode")
	} else {
		var err error
		baseKV, err = store.NewDefaultKVStore(conf.RootDir, conf.DBPath, dbName)
		if err != nil {
			return nil, fmt.Errorf("failed to open datastore: %w", err)
		}
	}
	db := store.New(baseKV)

	sim := chain.NewSimulated(
		uint64(time.Now().Unix()),
		chain.WithBlockTime(uint64(conf.Node.BlockTime/time.Second)),
		chain.WithHistoryWindow(conf.Node.HistoryWindow),
	)

	owner := conf.OwnerAddress()
	identity := oracleIdentity(owner)

	params := engine.DefaultParams()
	params.BlockTime = conf.Node.BlockTime

	var opts []engine.Option
	if conf.Instrumentation.Prometheus {
		opts = append(opts, engine.WithMetrics(engine.PrometheusMetrics(conf.Instrumentation.Namespace)))
	}

	eng, err := engine.New(params, sim, db, owner, identity, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Node{
		conf:     conf,
		logger:   logger,
		chain:    sim,
		engine:   eng,
		store:    db,
		identity: identity,
	}, nil
}

// oracleIdentity derives the address mixed into every seed and entropy fold
// from the owner address. Two deployments with different owners produce
// different randomness streams even on identical chains.
func oracleIdentity(owner common.Address) common.Address {
	h := crypto.Keccak256(owner.Bytes(), []byte("romulus/oracle"))
	return common.BytesToAddress(h[12:])
}

// Engine exposes the underlying randomness engine.
func (n *Node) Engine() *engine.Engine {
	return n.engine
}

// Chain exposes the simulated sequencer chain.
func (n *Node) Chain() *chain.Simulated {
	return n.chain
}

// Run drives the node until the context is cancelled or a component fails.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return n.blockLoop(ctx) })
	g.Go(func() error { return n.eventLoop(ctx) })
	g.Go(func() error { return n.serveRPC(ctx) })
	if n.conf.Instrumentation.Prometheus {
		g.Go(func() error { return n.servePrometheus(ctx) })
	}

	err := g.Wait()
	if cerr := n.store.Close(); cerr != nil {
		n.logger.Error("failed to close store", "error", cerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// blockLoop produces one block per block interval. Every block contributes
// entropy, and a fresh seed is generated as soon as the refresh interval
// allows it.
func (n *Node) blockLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.conf.Node.BlockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.chain.Advance(1)
			call := types.Call{Caller: n.identity, GasRemaining: uint64(time.Now().UnixNano())}
			if err := n.engine.AccumulateEntropy(ctx, call); err != nil {
				n.logger.Error("entropy accumulation failed", "error", err)
			}
			err := n.engine.GenerateSeed(ctx, call)
			switch {
			case err == nil:
			case errors.Is(err, engine.ErrTooEarlyToGenerateSeed):
			case errors.Is(err, engine.ErrNotEnoughHistory):
			default:
				n.logger.Error("seed generation failed", "error", err)
			}
		}
	}
}

// eventLoop logs engine notifications.
func (n *Node) eventLoop(ctx context.Context) error {
	events := n.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			n.logger.Info("engine event", "kind", ev.Kind(), "event", ev)
		}
	}
}

func (n *Node) serveRPC(ctx context.Context) error {
	handler := server.NewServer(n.engine, logging.Logger("rpc")).Handler()
	addr := net.JoinHostPort(n.conf.RPC.Address, strconv.Itoa(int(n.conf.RPC.Port)))
	srv := &http.Server{Addr: addr, Handler: handler}

	n.logger.Info("serving RPC", "addr", addr)
	return n.serve(ctx, srv)
}

func (n *Node) servePrometheus(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: n.conf.Instrumentation.PrometheusListenAddr, Handler: mux}

	n.logger.Info("serving Prometheus metrics", "addr", srv.Addr)
	return n.serve(ctx, srv)
}

func (n *Node) serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			n.logger.Error("server shutdown failed", "addr", srv.Addr, "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
