package share

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iudanet/gophmesh/internal/crypto"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/pkg/api"
)

// SaveLocalChange adds a locally created change to the log and remembers it
// as unacknowledged until some peer pulls it
func (s *Share) SaveLocalChange(data []byte) (string, error) {
	change, err := api.DecodeChange(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode local change: %w", err)
	}

	hash := crypto.HashChange(data)
	if !s.log.Add(hash, data) {
		return hash, nil
	}

	key := change.RowKey()
	s.localMu.Lock()
	if prev, ok := s.local[key]; ok {
		delete(s.localHashes, prev.hash)
	}
	s.local[key] = localChange{hash: hash, change: change}
	s.localHashes[hash] = key
	s.localMu.Unlock()

	return hash, nil
}

// UnacknowledgedCount returns the number of rows with local changes no peer has pulled yet
func (s *Share) UnacknowledgedCount() int {
	s.localMu.Lock()
	defer s.localMu.Unlock()
	return len(s.local)
}

// acknowledge снимает отметку с локальных изменений, отданных пиру
func (s *Share) acknowledge(hashes []string) {
	s.localMu.Lock()
	defer s.localMu.Unlock()

	for _, hash := range hashes {
		key, ok := s.localHashes[hash]
		if !ok {
			continue
		}
		delete(s.localHashes, hash)
		delete(s.local, key)
	}
}

// conflict возвращает неподтверждённое локальное изменение той же строки,
// если оно упорядочено раньше удалённого
func (s *Share) conflict(remote models.Change) (localChange, bool) {
	s.localMu.Lock()
	defer s.localMu.Unlock()

	local, ok := s.local[remote.RowKey()]
	if !ok || !local.change.Clock.Less(remote.Clock) {
		return localChange{}, false
	}
	return local, true
}

// SyncPeer runs one incremental sync with a connected peer
func (s *Share) SyncPeer(ctx context.Context, peerID string) (SyncResult, error) {
	s.mu.Lock()
	rp, ok := s.peers[peerID]
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return SyncResult{}, ErrClosed
	}
	if !ok {
		return SyncResult{}, fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	return s.syncPeer(ctx, rp, KindIncremental)
}

// SyncNow runs one incremental sync with every connected peer concurrently.
// Peers with a sync already running are skipped
func (s *Share) SyncNow(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SyncResult{}, ErrClosed
	}
	peers := make([]*remotePeer, 0, len(s.peers))
	for _, rp := range s.peers {
		peers = append(peers, rp)
	}
	s.mu.Unlock()

	var (
		mu    sync.Mutex
		total = SyncResult{Kind: KindIncremental}
		errs  []error
		wg    sync.WaitGroup
	)
	for _, rp := range peers {
		if !rp.info().State.Connected() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.syncPeer(ctx, rp, KindIncremental)

			mu.Lock()
			defer mu.Unlock()
			total.Merge(res)
			if err != nil && !errors.Is(err, ErrSyncInProgress) {
				errs = append(errs, fmt.Errorf("peer %s: %w", rp.id, err))
			}
		}()
	}
	wg.Wait()

	return total, errors.Join(errs...)
}

// syncPeer выполняет один раунд синхронизации. Не более одного раунда на пира одновременно
func (s *Share) syncPeer(ctx context.Context, rp *remotePeer, kind string) (SyncResult, error) {
	if !rp.syncing.CompareAndSwap(false, true) {
		return SyncResult{}, ErrSyncInProgress
	}
	defer rp.syncing.Store(false)

	start := time.Now()
	result, err := s.pull(ctx, rp, kind)
	s.metrics.ObserveSync(kind, time.Since(start), err)
	if err != nil {
		return result, err
	}

	rp.mu.Lock()
	rp.cursor = result.Cursor
	rp.lastSync = time.Now()
	rp.last = result
	rp.mu.Unlock()

	if result.Added > 0 || result.Rejected > 0 {
		s.logger.Debug("Synced with peer",
			"peer_id", rp.id,
			"kind", kind,
			"pulled", result.Pulled,
			"added", result.Added,
			"applied", result.Applied,
			"rejected", result.Rejected,
			"conflicts", result.Conflicts,
		)
	}
	return result, nil
}

func (s *Share) pull(ctx context.Context, rp *remotePeer, kind string) (SyncResult, error) {
	if kind == KindBulk {
		var resp api.GetUnseenChangesResp
		req := &api.GetUnseenChangesReq{BloomFilter: s.log.BloomFilter()}
		if err := rp.stub.Call(ctx, api.MethodGetUnseenChanges, req, &resp); err != nil {
			return SyncResult{Kind: kind}, err
		}
		result := s.receive(rp.id, resp.Changes)
		result.Kind, result.Cursor = kind, resp.Cursor
		return result, nil
	}

	rp.mu.Lock()
	cursor := rp.cursor
	rp.mu.Unlock()

	var resp api.GetRecentChangesResp
	if err := rp.stub.Call(ctx, api.MethodGetRecentChanges, &api.GetRecentChangesReq{Cursor: cursor}, &resp); err != nil {
		return SyncResult{Kind: kind}, err
	}
	result := s.receive(rp.id, resp.Changes)
	result.Kind, result.Cursor = kind, resp.Cursor
	return result, nil
}

// receive добавляет полученные изменения в журнал и применяет впервые увиденные.
// Изменение, которое не декодируется, отбрасывается и не попадает в журнал
func (s *Share) receive(peerID string, batch [][]byte) SyncResult {
	var result SyncResult

	for _, data := range batch {
		result.Pulled++
		hash := crypto.HashChange(data)

		change, err := api.DecodeChange(data)
		if err != nil {
			result.Rejected++
			s.metrics.ChangeRejected()
			s.logger.Warn("Rejected malformed change", "peer_id", peerID, "hash", hash, "error", err)
			continue
		}

		if !s.log.Add(hash, data) {
			continue
		}
		result.Added++

		if local, ok := s.conflict(change); ok {
			result.Conflicts++
			s.metrics.Conflict()
			if s.opts.OnConflict != nil {
				s.opts.OnConflict(models.Conflict{
					Local:      local.change,
					Remote:     change,
					LocalHash:  local.hash,
					RemoteHash: hash,
				})
			}
		}

		if s.opts.OnChange != nil && s.opts.OnChange(hash, change) {
			result.Applied++
		}
	}
	return result
}
