package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cedis/server/internal/store"
)

// runMaintenance is the background task loop (C12), ticking at the
// configured hz: active expiration, AOF fsync-policy enforcement, snapshot
// save-rule evaluation, maxmemory eviction, and process metric sampling.
// Grounded on original_source/src/server.rs's serverCron equivalent.
func (s *Server) runMaintenance(ctx context.Context) {
	hz := s.cfg.Hz
	if hz == 0 {
		hz = 10
	}
	interval := time.Second / time.Duration(hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cron()
		}
	}
}

func (s *Server) cron() {
	if s.cfg.ActiveExpireEnabled {
		s.disp.Store.Lock()
		removed := s.disp.Store.ActiveExpireCycle(20)
		s.disp.Store.Unlock()
		if removed > 0 && s.disp.Repl != nil {
			// Expired keys removed by the active cycle are not propagated
			// here, and lazy expiry on read/write paths propagates no
			// DEL/UNLINK either: each replica's own cron and lazy expiry
			// remove expired keys by its own clock.
			_ = removed
		}
	}

	if s.aof != nil {
		s.aof.Tick()
	}

	s.evaluateSaveRules()
	s.evictIfOverMemory()

	if s.metrics != nil {
		s.metrics.SampleProcess()
		if s.disp.Repl != nil {
			s.metrics.ReplicationOffset.Set(float64(s.disp.Repl.Offset()))
			s.metrics.ConnectedReplicas.Set(float64(s.disp.Repl.ConnectedFollowers()))
		}
	}
}

// evaluateSaveRules checks the configured `save` rules against the
// dispatcher's write counter and elapsed time since the last save, kicking
// off a background snapshot when any rule is satisfied (spec.md §4.11).
func (s *Server) evaluateSaveRules() {
	if s.snap == nil || len(s.cfg.SaveRules) == 0 {
		return
	}
	changes := s.disp.ChangesSinceSave()
	if changes == 0 {
		return
	}
	elapsed := s.disp.SecondsSinceSave()
	for _, rule := range s.cfg.SaveRules {
		if elapsed >= int64(rule.Seconds) && uint64(changes) >= rule.Changes {
			go func() {
				if err := s.snap.Save(); err != nil {
					s.logger.Warn("background save failed", zap.Error(err))
					return
				}
				s.disp.ResetSaveCounter()
			}()
			return
		}
	}
}

// evictIfOverMemory runs the configured eviction policy until estimated
// memory drops back under maxmemory, or nothing more is eligible
// (spec.md §4.11's "Eviction" rules; noeviction refuses new writes instead,
// enforced at the command layer rather than here).
func (s *Server) evictIfOverMemory() {
	if s.cfg.MaxMemory == 0 || s.cfg.MaxMemoryPolicy == "noeviction" {
		return
	}
	st := s.disp.Store
	st.Lock()
	defer st.Unlock()

	for i := 0; i < 1000; i++ {
		total := uint64(0)
		for d := 0; d < st.NumDatabases(); d++ {
			total += st.DB(d).EstimatedMemory()
		}
		if total <= s.cfg.MaxMemory {
			return
		}
		evicted := false
		for d := 0; d < st.NumDatabases(); d++ {
			db := st.DB(d)
			key, ok := db.EntryForEviction(s.cfg.MaxMemoryPolicy)
			if !ok {
				continue
			}
			db.Delete(key, store.NowMillis())
			evicted = true
		}
		if !evicted {
			return
		}
	}
}
