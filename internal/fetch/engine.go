package fetch

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/any-hub/any-hub/internal/cache"
	"github.com/any-hub/any-hub/internal/logging"
	"github.com/any-hub/any-hub/internal/upstream"
)

// shard is one coordination bucket: a lock guarding an in-flight table and a
// recent-failures set for the resources hashed into it.
type shard struct {
	mu       sync.Mutex
	inFlight map[string]chan struct{}
	failed   map[string]struct{}
}

// Engine is the process-wide single-flight fetch engine. One value is
// constructed at startup and shared by the front door and the convergence
// loop; it owns no package-level state.
type Engine struct {
	store   cache.Store
	client  *upstream.Client
	logger  *logrus.Logger
	shards  []*shard
	seed    uint32
	servers []upstream.Server
}

// New builds an Engine with shardCount coordination shards (must be a power
// of two; the caller — config validation — enforces that) backed by store
// for cache reads/writes and client for upstream HEAD/GET. defaultServers is
// the server set used when Fetch is called without an explicit one.
func New(store cache.Store, client *upstream.Client, logger *logrus.Logger, shardCount int, defaultServers []upstream.Server) *Engine {
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{
			inFlight: make(map[string]chan struct{}),
			failed:   make(map[string]struct{}),
		}
	}
	return &Engine{
		store:   store,
		client:  client,
		logger:  logger,
		shards:  shards,
		seed:    processSeed(),
		servers: defaultServers,
	}
}

// processSeed returns a value stable for the process lifetime, used to
// perturb shard selection so two processes don't share hot shards under
// identical resource sets. It is not required to be random across restarts.
func processSeed() uint32 {
	return uint32(time.Now().UnixNano())
}

func (e *Engine) shardFor(resource string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(resource))
	idx := (h.Sum32() ^ e.seed) % uint32(len(e.shards))
	return e.shards[idx]
}

// Fetch resolves resource to a local file path, materializing it from
// servers if necessary. A nil/empty servers defaults to the engine's
// configured upstream set. The bool is false when the resource is
// unavailable — either a known-recent failure or every server declined it.
func (e *Engine) Fetch(ctx context.Context, resource string, servers []upstream.Server) (string, bool) {
	if e.store.Exists(resource) {
		return resource, true
	}

	if len(servers) == 0 {
		servers = e.servers
	}

	sh := e.shardFor(resource)

	sh.mu.Lock()
	if _, failed := sh.failed[resource]; failed {
		sh.mu.Unlock()
		return "", false
	}
	if done, inFlight := sh.inFlight[resource]; inFlight {
		sh.mu.Unlock()
		return e.awaitCompletion(ctx, resource, done)
	}
	done := make(chan struct{})
	sh.inFlight[resource] = done
	sh.mu.Unlock()

	e.lead(ctx, resource, servers, sh, done)

	if e.store.Exists(resource) {
		return resource, true
	}
	return "", false
}

// awaitCompletion waits for an in-flight leader to finish, then rechecks the
// cache — the completion signal happens-before this check observes a
// consistent success/fail decision.
func (e *Engine) awaitCompletion(ctx context.Context, resource string, done <-chan struct{}) (string, bool) {
	select {
	case <-done:
	case <-ctx.Done():
		return "", false
	}
	if e.store.Exists(resource) {
		return resource, true
	}
	return "", false
}

// lead runs the leader's race-and-publish attempt for resource, guaranteeing
// that done is closed and the shard's in-flight entry removed on every exit
// path — success, failure, or panic.
func (e *Engine) lead(ctx context.Context, resource string, servers []upstream.Server, sh *shard, done chan struct{}) {
	defer func() {
		sh.mu.Lock()
		if !e.store.Exists(resource) {
			sh.failed[resource] = struct{}{}
		}
		delete(sh.inFlight, resource)
		sh.mu.Unlock()
		close(done)
	}()

	if len(servers) == 0 {
		return
	}
	if len(servers) == 1 {
		e.downloadAndPublish(ctx, servers[0], resource)
		return
	}
	e.race(ctx, servers, resource)
}

// race fans HEADs out to every server concurrently; the first 200 acquires a
// non-blocking winner lock via atomic compare-and-swap and alone performs
// the GET+publish.
func (e *Engine) race(ctx context.Context, servers []upstream.Server, resource string) {
	var won atomic.Bool

	p := pool.New().WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		p.Go(func(ctx context.Context) error {
			status, err := e.client.Head(ctx, srv, resource)
			if err != nil || !status.OK() {
				return nil
			}
			if !won.CompareAndSwap(false, true) {
				return nil
			}
			e.downloadAndPublish(ctx, srv, resource)
			return nil
		})
	}
	_ = p.Wait()
}

// downloadAndPublish performs the winning GET into a temp file and publishes
// it to the cache. Any failure simply leaves no cache entry; the caller's
// deferred cleanup records the failure.
func (e *Engine) downloadAndPublish(ctx context.Context, srv upstream.Server, resource string) {
	e.logger.WithFields(logging.RequestFields(resource, srv.BaseURL, false)).Info("upstream download started")

	temp, err := e.store.NewTemp()
	if err != nil {
		e.logger.WithError(err).Error("allocate temp file")
		return
	}

	status, err := e.client.Get(ctx, srv, resource, temp)
	closeErr := temp.Close()

	if err != nil || closeErr != nil || !status.OK() {
		e.store.Discard(temp.Name())
		return
	}

	if err := e.store.Publish(ctx, temp.Name(), resource); err != nil {
		e.logger.WithError(err).Error("publish cache entry")
	}
}

// ForgetFailures clears every shard's failure set, invoked once per
// convergence tick. Leadership/in-flight state is untouched.
func (e *Engine) ForgetFailures() {
	for _, sh := range e.shards {
		sh.mu.Lock()
		sh.failed = make(map[string]struct{})
		sh.mu.Unlock()
	}
}

// Stats summarizes shard occupancy for the admin status endpoint.
type Stats struct {
	Shards   int `json:"shards"`
	InFlight int `json:"in_flight"`
	Failed   int `json:"failed"`
}

// Stats reports, across all shards, how many resources are currently being
// fetched and how many are memoized as failed.
func (e *Engine) Stats() Stats {
	stats := Stats{Shards: len(e.shards)}
	for _, sh := range e.shards {
		sh.mu.Lock()
		stats.InFlight += len(sh.inFlight)
		stats.Failed += len(sh.failed)
		sh.mu.Unlock()
	}
	return stats
}
