package blocksync

import (
	"context"
	"fmt"
	"time"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/consensus"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/validation"
	"github.com/mmrnode/mmrnode/libs/log"
	"github.com/mmrnode/mmrnode/libs/service"
)

var _ service.Service = (*Reactor)(nil)

// Reactor keeps the node in sync with its peers. Every round syncs headers,
// then the blocks behind them, then prunes the accumulator history below
// the pruning horizon. A round starts as soon as the reactor starts and
// then every RetryInterval.
type Reactor struct {
	service.BaseService
	logger log.Logger

	cfg        *config.SyncConfig
	store      store.BlockStore
	headerSync *HeaderSynchronizer
	blockSync  *BlockSynchronizer

	done chan struct{}
}

// NewReactor returns new reactor instance.
func NewReactor(
	logger log.Logger,
	cfg *config.SyncConfig,
	s store.BlockStore,
	rules consensus.Rules,
	peers PeerConnectivity,
	validator validation.BodyValidator,
	metrics *Metrics,
	opts ...BlockSyncOption,
) *Reactor {
	r := &Reactor{
		logger:     logger,
		cfg:        cfg,
		store:      s,
		headerSync: NewHeaderSynchronizer(logger.With("sync", "headers"), cfg, s, rules, peers, metrics),
		blockSync:  NewBlockSynchronizer(logger.With("sync", "blocks"), cfg, s, peers, validator, metrics, opts...),
		done:       make(chan struct{}),
	}
	r.BaseService = *service.NewBaseService(logger, "BlockSync", r)
	return r
}

// OnStart implements service.Service.
func (r *Reactor) OnStart(ctx context.Context) error {
	go r.syncRoutine(ctx)
	return nil
}

// OnStop implements service.Service. It waits for the running round to
// return, which happens between two blocks at the latest.
func (r *Reactor) OnStop() {
	<-r.done
}

func (r *Reactor) syncRoutine(ctx context.Context) {
	defer close(r.done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := r.SyncOnce(ctx)
		switch {
		case err == nil, ctx.Err() != nil:
		case IsRetryable(err):
			r.logger.Info("sync round failed, will retry", "err", err, "retry_in", r.cfg.RetryInterval)
		default:
			r.logger.Error("sync round failed", "err", err)
		}
		timer.Reset(r.cfg.RetryInterval)
	}
}

// SyncOnce runs a single sync round. A retryable header sync failure does
// not prevent syncing the blocks of the headers already known.
func (r *Reactor) SyncOnce(ctx context.Context) error {
	herr := r.headerSync.Synchronize(ctx)
	if herr != nil && !IsRetryable(herr) {
		return fmt.Errorf("header sync: %w", herr)
	}
	if err := r.blockSync.Synchronize(ctx); err != nil {
		return fmt.Errorf("block sync: %w", err)
	}
	if _, err := Prune(r.logger, r.store); err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	if herr != nil {
		return fmt.Errorf("header sync: %w", herr)
	}
	return nil
}

// Prune merges the accumulator checkpoints of the blocks below the
// pruning horizon into the base snapshot and returns the new pruned
// height. Blocks at or below it can no longer be rewound.
func Prune(logger log.Logger, s store.BlockStore) (uint64, error) {
	meta, err := s.FetchChainMetadata()
	if err != nil {
		return 0, err
	}
	target := meta.HorizonHeight()
	if target <= meta.PrunedHeight {
		return meta.PrunedHeight, nil
	}
	// the checkpoints of heights PrunedHeight..target become one
	k := int(target - meta.PrunedHeight + 1)
	if err := s.Write(store.NewDBTransaction().MergeCheckpoints(k)); err != nil {
		return meta.PrunedHeight, err
	}
	logger.Info("pruned accumulator history", "pruned_height", target, "horizon", meta.PruningHorizon)
	return target, nil
}
