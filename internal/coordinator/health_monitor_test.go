package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardmap/internal/model"
)

func testShard(id uuid.UUID, port int) model.Shard {
	return model.Shard{
		ID:       id,
		Version:  uuid.New(),
		Location: model.Location{Server: "localhost", Database: "shard", Protocol: "tcp", Port: port},
		Status:   model.ShardOnline,
	}
}

func TestNewHealthMonitor(t *testing.T) {
	monitor := NewHealthMonitor(5 * time.Second)
	defer monitor.Stop()

	assert.NotNil(t, monitor)
	assert.Equal(t, 5*time.Second, monitor.interval)
	assert.Equal(t, 2*time.Second, monitor.timeout)
	assert.Equal(t, 3, monitor.maxFailures)
	assert.NotNil(t, monitor.shards)
	assert.NotNil(t, monitor.httpClient)
	assert.Len(t, monitor.shards, 0)
}

func TestHealthMonitorStart(t *testing.T) {
	monitor := NewHealthMonitor(100 * time.Millisecond)
	defer monitor.Stop()

	checkCalls := 0
	var mu sync.Mutex
	monitor.SetCheckFunction(func(loc model.Location) error {
		mu.Lock()
		checkCalls++
		mu.Unlock()
		return nil
	})

	shardA, shardB := uuid.New(), uuid.New()
	shardProvider := func() []model.Shard {
		return []model.Shard{testShard(shardA, 8081), testShard(shardB, 8082)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, shardProvider)

	time.Sleep(350 * time.Millisecond)

	mu.Lock()
	calls := checkCalls
	mu.Unlock()
	assert.GreaterOrEqual(t, calls, 6, "expected at least 6 health checks")

	allHealth := monitor.GetAllShardHealth()
	assert.Len(t, allHealth, 2)
	assert.Contains(t, allHealth, shardA)
	assert.Contains(t, allHealth, shardB)

	assert.True(t, monitor.IsHealthy(shardA))
	assert.True(t, monitor.IsHealthy(shardB))
}

func TestHealthMonitorShardFailure(t *testing.T) {
	monitor := NewHealthMonitor(50 * time.Millisecond)
	defer monitor.Stop()

	shardA, shardB := uuid.New(), uuid.New()
	failing := make(map[uuid.UUID]bool)
	var mu sync.Mutex

	monitor.SetCheckFunction(func(loc model.Location) error {
		mu.Lock()
		defer mu.Unlock()
		if loc.Port == 8081 && failing[shardA] {
			return fmt.Errorf("shard is down")
		}
		return nil
	})

	var unhealthy []uuid.UUID
	monitor.SetOnUnhealthy(func(shardID uuid.UUID) {
		mu.Lock()
		unhealthy = append(unhealthy, shardID)
		mu.Unlock()
	})

	shardProvider := func() []model.Shard {
		return []model.Shard{testShard(shardA, 8081), testShard(shardB, 8082)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, shardProvider)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, monitor.IsHealthy(shardA))
	assert.True(t, monitor.IsHealthy(shardB))

	mu.Lock()
	failing[shardA] = true
	mu.Unlock()

	time.Sleep(250 * time.Millisecond)

	assert.False(t, monitor.IsHealthy(shardA))
	assert.True(t, monitor.IsHealthy(shardB))

	mu.Lock()
	assert.Contains(t, unhealthy, shardA)
	mu.Unlock()

	health := monitor.GetShardHealth(shardA)
	require.NotNil(t, health)
	assert.Equal(t, "unhealthy", health.Status)
	assert.GreaterOrEqual(t, health.ConsecutiveFails, 3)
}

func TestHealthMonitorShardRecovery(t *testing.T) {
	monitor := NewHealthMonitor(50 * time.Millisecond)
	defer monitor.Stop()

	shardA := uuid.New()
	healthy := true
	var mu sync.Mutex

	monitor.SetCheckFunction(func(loc model.Location) error {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			return fmt.Errorf("shard is down")
		}
		return nil
	})

	recovered := 0
	monitor.SetOnHealthy(func(shardID uuid.UUID) {
		mu.Lock()
		recovered++
		mu.Unlock()
	})

	shardProvider := func() []model.Shard {
		return []model.Shard{testShard(shardA, 8081)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, shardProvider)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, monitor.IsHealthy(shardA))

	mu.Lock()
	healthy = false
	mu.Unlock()
	time.Sleep(250 * time.Millisecond)
	assert.False(t, monitor.IsHealthy(shardA))

	mu.Lock()
	healthy = true
	mu.Unlock()
	time.Sleep(100 * time.Millisecond)

	assert.True(t, monitor.IsHealthy(shardA))

	health := monitor.GetShardHealth(shardA)
	require.NotNil(t, health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 0, health.ConsecutiveFails)

	mu.Lock()
	assert.Equal(t, 1, recovered)
	mu.Unlock()
}

func TestHealthMonitorShardRemoval(t *testing.T) {
	monitor := NewHealthMonitor(50 * time.Millisecond)
	defer monitor.Stop()

	monitor.SetCheckFunction(func(loc model.Location) error { return nil })

	shardA, shardB := uuid.New(), uuid.New()
	var mu sync.Mutex
	shards := []model.Shard{testShard(shardA, 8081), testShard(shardB, 8082)}

	shardProvider := func() []model.Shard {
		mu.Lock()
		defer mu.Unlock()
		return shards
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, shardProvider)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, monitor.GetAllShardHealth(), 2)

	mu.Lock()
	shards = []model.Shard{testShard(shardA, 8081)}
	mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	allHealth := monitor.GetAllShardHealth()
	assert.Len(t, allHealth, 1)
	assert.Contains(t, allHealth, shardA)
	assert.NotContains(t, allHealth, shardB)
}

func TestHealthMonitorStop(t *testing.T) {
	monitor := NewHealthMonitor(50 * time.Millisecond)

	running := true
	checkCount := 0
	var mu sync.Mutex

	monitor.SetCheckFunction(func(loc model.Location) error {
		mu.Lock()
		defer mu.Unlock()
		checkCount++
		return nil
	})

	shardA := uuid.New()
	shardProvider := func() []model.Shard {
		mu.Lock()
		defer mu.Unlock()
		if running {
			return []model.Shard{testShard(shardA, 8081)}
		}
		return nil
	}

	go monitor.Start(nil, shardProvider)
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	before := checkCount
	mu.Unlock()

	mu.Lock()
	running = false
	mu.Unlock()
	monitor.Stop()

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	after := checkCount
	mu.Unlock()

	assert.Greater(t, before, 0)
	assert.Equal(t, before, after)
}

// TestHealthMonitorStopWaitsForInFlightCallback checks that Stop blocks
// until a slow onUnhealthy callback triggered just before cancellation has
// actually finished running, not merely until the polling loop exits.
func TestHealthMonitorStopWaitsForInFlightCallback(t *testing.T) {
	monitor := NewHealthMonitor(20 * time.Millisecond)

	monitor.SetCheckFunction(func(loc model.Location) error {
		return fmt.Errorf("always failing")
	})

	var finished atomic.Bool
	callbackStarted := make(chan struct{})
	monitor.SetOnUnhealthy(func(shardID uuid.UUID) {
		close(callbackStarted)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	})

	shardA := uuid.New()
	shardProvider := func() []model.Shard {
		return []model.Shard{testShard(shardA, 8081)}
	}

	go monitor.Start(nil, shardProvider)

	<-callbackStarted
	monitor.Stop()

	assert.True(t, finished.Load(), "Stop must block until the in-flight callback has returned")
}

func TestHealthMonitorConcurrency(t *testing.T) {
	monitor := NewHealthMonitor(10 * time.Millisecond)
	defer monitor.Stop()

	monitor.SetCheckFunction(func(loc model.Location) error { return nil })

	shardCount := 5
	ids := make([]uuid.UUID, shardCount)
	for i := range ids {
		ids[i] = uuid.New()
	}
	shardProvider := func() []model.Shard {
		shards := make([]model.Shard, shardCount)
		for i := 0; i < shardCount; i++ {
			shards[i] = testShard(ids[i], 8080+i)
		}
		return shards
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, shardProvider)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				monitor.IsHealthy(ids[id%shardCount])
				monitor.GetShardHealth(ids[id%shardCount])
				monitor.GetAllShardHealth()
				time.Sleep(time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, monitor.GetAllShardHealth(), shardCount)
}

func TestHealthMonitorUnhealthyCallbackFiresOncePerTransition(t *testing.T) {
	monitor := NewHealthMonitor(50 * time.Millisecond)
	defer monitor.Stop()

	failCount := 0
	var mu sync.Mutex
	monitor.SetCheckFunction(func(loc model.Location) error {
		mu.Lock()
		defer mu.Unlock()
		if failCount < 3 {
			failCount++
			return fmt.Errorf("failing")
		}
		return nil
	})

	callbackCount := 0
	var callbackMu sync.Mutex
	monitor.SetOnUnhealthy(func(shardID uuid.UUID) {
		callbackMu.Lock()
		callbackCount++
		callbackMu.Unlock()
	})

	shardA := uuid.New()
	shardProvider := func() []model.Shard {
		return []model.Shard{testShard(shardA, 8081)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, shardProvider)

	time.Sleep(250 * time.Millisecond)

	callbackMu.Lock()
	assert.Equal(t, 1, callbackCount)
	callbackMu.Unlock()

	time.Sleep(150 * time.Millisecond)

	callbackMu.Lock()
	assert.Equal(t, 1, callbackCount)
	callbackMu.Unlock()
}
