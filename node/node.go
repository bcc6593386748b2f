package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dbm "github.com/tendermint/tm-db"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/blocksync"
	"github.com/mmrnode/mmrnode/internal/consensus"
	"github.com/mmrnode/mmrnode/internal/mmr"
	"github.com/mmrnode/mmrnode/internal/rpc"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/validation"
	"github.com/mmrnode/mmrnode/libs/log"
	"github.com/mmrnode/mmrnode/libs/service"
	"github.com/mmrnode/mmrnode/types"
)

// Node is a base node: a block store kept in sync with the configured peers
// and served to other nodes over gRPC.
type Node struct {
	service.BaseService
	logger log.Logger

	config  *config.Config
	genesis *types.GenesisDoc
	db      dbm.DB
	store   *store.DBStore

	reactor    *blocksync.Reactor // nil if sync is disabled
	rpcServer  *rpc.Server        // nil if the gRPC server is disabled
	closePeers func() error
	promSrv    *http.Server
}

// NewDefault loads the genesis file and opens the database the
// configuration points to, then creates the node.
func NewDefault(cfg *config.Config, logger log.Logger) (*Node, error) {
	genDoc, db, err := loadGenesisAndDB(cfg)
	if err != nil {
		return nil, err
	}
	n, err := New(cfg, logger, genDoc, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return n, nil
}

// OpenStore opens the block store of the node configured by cfg without
// creating the node. The caller closes the store.
func OpenStore(cfg *config.Config, logger log.Logger) (*store.DBStore, *types.GenesisDoc, error) {
	genDoc, db, err := loadGenesisAndDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.NewBlockStore(db, genDoc.Block,
		store.WithLogger(logger.With("module", "store")),
		store.WithCacheConfig(mmr.CacheConfig{RewindHistLen: cfg.Storage.RewindHistLen}),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("open block store: %w", err)
	}
	return s, genDoc, nil
}

func loadGenesisAndDB(cfg *config.Config) (*types.GenesisDoc, dbm.DB, error) {
	genDoc, err := types.GenesisDocFromFile(cfg.GenesisFile())
	if err != nil {
		return nil, nil, err
	}
	db, err := config.DefaultDBProvider(&config.DBContext{ID: "blockstore", Config: cfg})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return genDoc, db, nil
}

// New creates a node on db. The node owns db and closes it on stop.
func New(cfg *config.Config, logger log.Logger, genDoc *types.GenesisDoc, db dbm.DB) (*Node, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	storeMetrics, syncMetrics := metricsProvider(cfg.Instrumentation, genDoc.ChainID)

	s, err := store.NewBlockStore(db, genDoc.Block,
		store.WithLogger(logger.With("module", "store")),
		store.WithMetrics(storeMetrics),
		store.WithCacheConfig(mmr.CacheConfig{RewindHistLen: cfg.Storage.RewindHistLen}),
	)
	if err != nil {
		return nil, fmt.Errorf("open block store: %w", err)
	}
	if err := applyPruningHorizon(s, cfg.Storage.PruningHorizon); err != nil {
		return nil, err
	}

	n := &Node{
		logger:     logger,
		config:     cfg,
		genesis:    genDoc,
		db:         db,
		store:      s,
		closePeers: func() error { return nil },
	}

	if cfg.RPC.ListenAddress != "" {
		responder := blocksync.NewResponder(logger.With("module", "responder"), s, cfg.Sync.BlockChunkSize, syncMetrics)
		n.rpcServer = rpc.NewServer(logger.With("module", "rpc"), cfg.RPC, responder)
	}

	if cfg.Sync.Enable {
		rules, err := Rules(cfg.Consensus)
		if err != nil {
			return nil, err
		}
		addrs, err := rpc.ParsePeers(cfg.Sync.Peers)
		if err != nil {
			return nil, fmt.Errorf("sync peers: %w", err)
		}
		peers, closePeers, err := rpc.DialPeers(context.Background(), addrs, cfg.Sync.RPCTimeout)
		if err != nil {
			return nil, err
		}
		n.closePeers = closePeers

		syncLogger := logger.With("module", "blocksync")
		n.reactor = blocksync.NewReactor(
			syncLogger,
			cfg.Sync,
			s,
			rules,
			blocksync.NewStaticPeers(peers...),
			validation.NewBodyOnlyValidator(s),
			syncMetrics,
			blocksync.OnComplete(func(b *types.Block) {
				syncLogger.Info("caught up with peer", "height", b.Height(), "hash", b.Hash())
			}),
		)
	}

	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

// Rules returns the consensus rules the configuration selects.
func Rules(cfg *config.ConsensusConfig) (consensus.Rules, error) {
	switch cfg.Constants {
	case config.ConstantsDefault:
		return consensus.NewHeightRules(consensus.DefaultConstants())
	case config.ConstantsTest:
		return consensus.NewHeightRules(consensus.TestConstants())
	default:
		return nil, fmt.Errorf("unknown consensus constants %q", cfg.Constants)
	}
}

func applyPruningHorizon(s *store.DBStore, horizon uint64) error {
	meta, err := s.FetchChainMetadata()
	if err != nil {
		return err
	}
	if meta.PruningHorizon == horizon {
		return nil
	}
	return s.Write(store.NewDBTransaction().SetPruningHorizon(horizon))
}

// OnStart implements service.Service.
func (n *Node) OnStart(ctx context.Context) error {
	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		srv, err := n.startPrometheusServer()
		if err != nil {
			return err
		}
		n.promSrv = srv
	}

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(ctx); err != nil {
			return fmt.Errorf("start sync server: %w", err)
		}
	}
	if n.reactor != nil {
		if err := n.reactor.Start(ctx); err != nil {
			return fmt.Errorf("start sync reactor: %w", err)
		}
	}

	meta, err := n.store.FetchChainMetadata()
	if err != nil {
		return err
	}
	n.logger.Info("node started",
		"chain_id", n.genesis.ChainID,
		"height", meta.Height,
		"best_block", meta.BestBlock,
		"pruned_height", meta.PrunedHeight)
	return nil
}

// OnStop implements service.Service.
func (n *Node) OnStop() {
	n.logger.Info("stopping node")

	// the services stop on their own once the node context is canceled,
	// Stop blocks until they are done
	if n.reactor != nil {
		if err := n.reactor.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			n.logger.Error("failed to stop sync reactor", "err", err)
		}
	}
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			n.logger.Error("failed to stop sync server", "err", err)
		}
	}
	if err := n.closePeers(); err != nil {
		n.logger.Error("failed to close peer connections", "err", err)
	}
	if n.promSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.promSrv.Shutdown(ctx); err != nil {
			n.logger.Error("prometheus HTTP server Shutdown", "err", err)
		}
	}
	if err := n.db.Close(); err != nil {
		n.logger.Error("failed to close database", "err", err)
	}
}

// startPrometheusServer starts a Prometheus HTTP server, listening for metrics
// collectors on the configured address.
func (n *Node) startPrometheusServer() (*http.Server, error) {
	ln, err := net.Listen("tcp", n.config.Instrumentation.PrometheusListenAddr)
	if err != nil {
		return nil, fmt.Errorf("prometheus listener: %w", err)
	}
	srv := &http.Server{
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.config.Instrumentation.MaxOpenConnections},
			),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv, nil
}

// Store returns the block store of the node.
func (n *Node) Store() *store.DBStore { return n.store }

// GenesisDoc returns the genesis document the node was started with.
func (n *Node) GenesisDoc() *types.GenesisDoc { return n.genesis }

// RPCAddr returns the address of the gRPC sync server, or nil if it is
// disabled or not started.
func (n *Node) RPCAddr() net.Addr {
	if n.rpcServer == nil {
		return nil
	}
	return n.rpcServer.Addr()
}

// SyncOnce runs a single sync round with the configured peers. It is
// independent of the sync routine started with the node.
func (n *Node) SyncOnce(ctx context.Context) error {
	if n.reactor == nil {
		return errors.New("sync is disabled")
	}
	return n.reactor.SyncOnce(ctx)
}

func metricsProvider(cfg *config.InstrumentationConfig, chainID string) (*store.Metrics, *blocksync.Metrics) {
	if cfg.Prometheus {
		return store.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
			blocksync.PrometheusMetrics(cfg.Namespace, "chain_id", chainID)
	}
	return store.NopMetrics(), blocksync.NopMetrics()
}
