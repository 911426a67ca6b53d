// Package coordinator implements the operation engine and write-ahead-log
// recovery for the shard map protocol. This file implements background
// health polling of shard locations and reports online/offline transitions.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/model"
)

// ShardHealth tracks the health status of a single shard's location.
// Thread-safe: protected by HealthMonitor's mutex when accessed.
type ShardHealth struct {
	LastCheck        time.Time
	LastHealthy      time.Time
	ShardID          uuid.UUID
	Status           string // "healthy", "unhealthy", "unknown"
	ConsecutiveFails int
}

// HealthMonitor performs periodic health checks against the server/database
// endpoint each shard's model.Location names, independently of the GSM/LSM
// status recorded for that shard. Its onUnhealthy/onHealthy callbacks let a
// ShardMapManager flip a shard's status (MonitorShardHealth wires them to
// UpdateShard), closing the loop between
// actual replica reachability and the status the mapper and clients observe.
//
// Thread Safety: all methods are safe for concurrent access.
type HealthMonitor struct {
	shards      map[uuid.UUID]*ShardHealth
	httpClient  *http.Client
	checkFunc   func(loc model.Location) error
	onUnhealthy func(shardID uuid.UUID)
	onHealthy   func(shardID uuid.UUID)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor creates a new health monitor with the specified check
// interval. Shards are marked unhealthy after 3 consecutive failures.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		shards:      make(map[uuid.UUID]*ShardHealth),
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnUnhealthy sets the callback invoked when a shard transitions to
// unhealthy. Typical use is flipping the shard's status to offline, as
// ShardMapManager.MonitorShardHealth does via UpdateShard.
func (h *HealthMonitor) SetOnUnhealthy(callback func(shardID uuid.UUID)) {
	h.onUnhealthy = callback
}

// SetOnHealthy sets the callback invoked when a shard transitions back to
// healthy after having been unhealthy. Typical use is flipping the shard's
// status back to online, as ShardMapManager.MonitorShardHealth does via
// UpdateShard.
func (h *HealthMonitor) SetOnHealthy(callback func(shardID uuid.UUID)) {
	h.onHealthy = callback
}

// Start begins the health monitoring loop in the current goroutine. It
// periodically checks all shards returned by shardProvider. It blocks until
// ctx is canceled or Stop is called, whichever comes first (a nil ctx
// leaves Stop as the only way out).
func (h *HealthMonitor) Start(ctx context.Context, shardProvider func() []model.Shard) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("shard health monitor started with interval %v", h.interval)

	h.checkAllShards(shardProvider())

	for {
		select {
		case <-ticker.C:
			h.checkAllShards(shardProvider())
		case <-ctx.Done():
			log.Println("shard health monitor stopping due to context cancellation")
			return
		case <-h.ctx.Done():
			log.Println("shard health monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop gracefully shuts down the health monitor, waiting for the monitoring
// goroutine and any in-flight onUnhealthy/onHealthy callbacks to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	log.Println("shard health monitor stopped")
}

func (h *HealthMonitor) checkAllShards(shards []model.Shard) {
	current := make(map[uuid.UUID]bool, len(shards))

	for _, shard := range shards {
		current[shard.ID] = true
		h.checkShard(shard)
	}

	h.mu.Lock()
	for shardID := range h.shards {
		if !current[shardID] {
			delete(h.shards, shardID)
			log.Printf("removed shard %s from health monitoring", shardID)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkShard(shard model.Shard) {
	h.mu.Lock()
	health, exists := h.shards[shard.ID]
	if !exists {
		health = &ShardHealth{
			ShardID:     shard.ID,
			Status:      "unknown",
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.shards[shard.ID] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(shard.Location)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		log.Printf("health check failed for shard %s at %s (attempt %d/%d): %v",
			shard.ID, shard.Location, health.ConsecutiveFails, h.maxFailures, err)

		if health.ConsecutiveFails >= h.maxFailures {
			previousStatus := health.Status
			health.Status = "unhealthy"

			if previousStatus != "unhealthy" && h.onUnhealthy != nil {
				log.Printf("shard %s marked unhealthy after %d failures", shard.ID, health.ConsecutiveFails)
				h.wg.Add(1)
				go func() {
					defer h.wg.Done()
					h.onUnhealthy(shard.ID)
				}()
			}
		}
	} else {
		wasUnhealthy := health.Status == "unhealthy"
		health.Status = "healthy"
		health.ConsecutiveFails = 0
		health.LastHealthy = time.Now()

		if wasUnhealthy && h.onHealthy != nil {
			log.Printf("shard %s recovered and is healthy again", shard.ID)
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.onHealthy(shard.ID)
			}()
		}
	}
}

// defaultHealthCheck performs an HTTP GET against the shard location's
// /health endpoint. It returns an error if the endpoint is unreachable or
// does not answer 200 OK.
func (h *HealthMonitor) defaultHealthCheck(loc model.Location) error {
	addr := fmt.Sprintf("%s:%d", loc.Server, loc.Port)
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = fmt.Sprintf("http://%s", url)
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// GetShardHealth returns the current health record for a shard, or nil if
// the shard is not being monitored.
func (h *HealthMonitor) GetShardHealth(shardID uuid.UUID) *ShardHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.shards[shardID]
	if !exists {
		return nil
	}

	copied := *health
	return &copied
}

// GetAllShardHealth returns the health record of every monitored shard.
func (h *HealthMonitor) GetAllShardHealth() map[uuid.UUID]*ShardHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[uuid.UUID]*ShardHealth, len(h.shards))
	for id, health := range h.shards {
		copied := *health
		result[id] = &copied
	}
	return result
}

// IsHealthy reports whether a specific shard is currently healthy. Returns
// false if the shard is not being monitored.
func (h *HealthMonitor) IsHealthy(shardID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.shards[shardID]
	if !exists {
		return false
	}
	return health.Status == "healthy"
}

// SetCheckFunction overrides the default HTTP health check, primarily for
// tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(loc model.Location) error) {
	h.checkFunc = checkFunc
}
