package converge

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/any-hub/any-hub/internal/cache"
	"github.com/any-hub/any-hub/internal/fetch"
	"github.com/any-hub/any-hub/internal/resource"
	"github.com/any-hub/any-hub/internal/upstream"
)

// registryState is the promoted state for one known registry UUID.
type registryState struct {
	hash    string
	servers []upstream.Server
}

// Loop is the registry convergence loop. One value is constructed at
// startup, owns no package-level state, and runs on its own long-lived
// goroutine alongside the front door.
type Loop struct {
	engine           *fetch.Engine
	client           *upstream.Client
	store            cache.Store
	logger           *logrus.Logger
	servers          []upstream.Server
	registries       []string // known_registries, sorted UUIDs, fixed at startup
	interval         time.Duration
	probeConcurrency int

	mu       sync.RWMutex
	current  map[string]registryState
	lastTick time.Time
}

// New builds a Loop over the given known registry UUIDs (New sorts a copy)
// and upstream server set.
func New(engine *fetch.Engine, client *upstream.Client, store cache.Store, logger *logrus.Logger, servers []upstream.Server, registries []string, interval time.Duration, probeConcurrency int) *Loop {
	sorted := append([]string(nil), registries...)
	sort.Strings(sorted)
	return &Loop{
		engine:           engine,
		client:           client,
		store:            store,
		logger:           logger,
		servers:          servers,
		registries:       sorted,
		interval:         interval,
		probeConcurrency: probeConcurrency,
		current:          make(map[string]registryState),
	}
}

// Run ticks every interval until ctx is canceled. It calls Tick once
// immediately before entering the ticker loop so the listing file exists as
// soon as possible after startup.
func (l *Loop) Run(ctx context.Context) {
	l.Tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one convergence pass: harvest, cross-check, promote, publish.
// It always forgets the fetch engine's failure memoization first, so a
// resource that failed between ticks gets a fresh chance on this one.
func (l *Loop) Tick(ctx context.Context) {
	l.engine.ForgetFailures()

	l.mu.Lock()
	l.lastTick = time.Now()
	l.mu.Unlock()

	advertised := l.harvest(ctx)
	l.crossCheck(ctx, advertised)

	changed := false
	for _, uuid := range l.registries {
		if l.promote(ctx, uuid, advertised[uuid]) {
			changed = true
		}
	}

	if changed {
		if err := l.publishListing(ctx); err != nil {
			l.logger.WithError(err).Error("publish registry listing")
		}
	}
}

// harvest fetches /registries from every upstream and returns, per known
// registry UUID, the set of servers that advertised each hash.
func (l *Loop) harvest(ctx context.Context) map[string]map[string][]upstream.Server {
	result := make(map[string]map[string][]upstream.Server, len(l.registries))
	for _, uuid := range l.registries {
		result[uuid] = make(map[string][]upstream.Server)
	}

	for _, srv := range l.servers {
		var buf bytes.Buffer
		status, err := l.client.Get(ctx, srv, "/registries", &buf)
		if err != nil || !status.OK() {
			continue
		}
		l.parseListing(srv, buf.Bytes(), result)
	}
	return result
}

// parseListing decodes one upstream's newline-delimited /registry/{uuid}/{hash}
// listing, recording srv against each known, well-formed entry and logging
// (then skipping) anything malformed.
func (l *Loop) parseListing(srv upstream.Server, body []byte, result map[string]map[string][]upstream.Server) {
	known := make(map[string]struct{}, len(l.registries))
	for _, uuid := range l.registries {
		known[uuid] = struct{}{}
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		res, ok := resource.Classify(line)
		if !ok || res.Kind != resource.KindRegistry {
			l.logger.WithFields(logrus.Fields{"upstream": srv.BaseURL, "line": line}).Error("malformed registries line")
			continue
		}
		if _, known := known[res.UUID]; !known {
			continue
		}
		result[res.UUID][res.Hash] = append(result[res.UUID][res.Hash], srv)
	}
}

// crossCheck probes, for each (uuid, hash) pair, every upstream that did not
// advertise it, adding any 200 response to that hash's server set. Probing
// runs with bounded concurrency so one tick can't fan out an unbounded
// number of HEAD requests.
func (l *Loop) crossCheck(ctx context.Context, advertised map[string]map[string][]upstream.Server) {
	type probe struct {
		uuid, hash string
		srv        upstream.Server
	}

	var probes []probe
	for uuid, hashes := range advertised {
		for hash, servers := range hashes {
			advertisedBy := make(map[string]struct{}, len(servers))
			for _, s := range servers {
				advertisedBy[s.BaseURL] = struct{}{}
			}
			for _, srv := range l.servers {
				if _, already := advertisedBy[srv.BaseURL]; already {
					continue
				}
				probes = append(probes, probe{uuid: uuid, hash: hash, srv: srv})
			}
		}
	}
	if len(probes) == 0 {
		return
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(maxGoroutines(l.probeConcurrency)).WithContext(ctx)
	for _, pr := range probes {
		pr := pr
		p.Go(func(ctx context.Context) error {
			target := fmt.Sprintf("/registry/%s/%s", pr.uuid, pr.hash)
			status, err := l.client.Head(ctx, pr.srv, target)
			if err != nil || !status.OK() {
				return nil
			}
			mu.Lock()
			advertised[pr.uuid][pr.hash] = append(advertised[pr.uuid][pr.hash], pr.srv)
			mu.Unlock()
			return nil
		})
	}
	_ = p.Wait()
}

func maxGoroutines(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// promote attempts, in fewest-sources-first order, to fetch each candidate
// hash for uuid; the first that materializes locally becomes current. It
// reports whether the current hash for uuid changed this tick.
func (l *Loop) promote(ctx context.Context, uuid string, hashes map[string][]upstream.Server) bool {
	if len(hashes) == 0 {
		return false // keep existing current_hash; serve stale rather than go blank
	}

	candidates := make([]string, 0, len(hashes))
	for hash := range hashes {
		candidates = append(candidates, hash)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return len(hashes[candidates[i]]) < len(hashes[candidates[j]])
	})

	for _, hash := range candidates {
		target := fmt.Sprintf("/registry/%s/%s", uuid, hash)
		if _, ok := l.engine.Fetch(ctx, target, hashes[hash]); ok {
			l.mu.Lock()
			prev, had := l.current[uuid]
			l.current[uuid] = registryState{hash: hash, servers: hashes[hash]}
			l.mu.Unlock()
			return !had || prev.hash != hash
		}
	}
	return false
}

// publishListing writes cache/registries: one /registry/{uuid}/{hash} line
// per known registry that has a promoted hash, in sorted UUID order, via temp
// file + atomic rename. Registries not yet promoted get no line.
func (l *Loop) publishListing(ctx context.Context) error {
	l.mu.RLock()
	var buf bytes.Buffer
	for _, uuid := range l.registries {
		state, ok := l.current[uuid]
		if !ok {
			continue
		}
		fmt.Fprintf(&buf, "/registry/%s/%s\n", uuid, state.hash)
	}
	l.mu.RUnlock()

	temp, err := l.store.NewTemp()
	if err != nil {
		return fmt.Errorf("allocate listing temp file: %w", err)
	}
	if _, err := temp.Write(buf.Bytes()); err != nil {
		temp.Close()
		l.store.Discard(temp.Name())
		return fmt.Errorf("write listing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		l.store.Discard(temp.Name())
		return fmt.Errorf("close listing temp file: %w", err)
	}
	return l.store.Publish(ctx, temp.Name(), "/registries")
}

// Snapshot returns the currently promoted hash per registry UUID, for the
// admin status endpoint.
func (l *Loop) Snapshot() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.current))
	for uuid, state := range l.current {
		out[uuid] = state.hash
	}
	return out
}

// LastTick returns when Tick last ran, the zero value before the first run.
func (l *Loop) LastTick() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastTick
}
