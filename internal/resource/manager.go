package resource

import (
	"context"
	"sort"
	"sync"
	"time"

	"CoopLedgerSaas/internal/logger"

	"go.uber.org/zap"
)

// Pinger is a dependency whose reachability is tracked, such as a database
// pool or the redis lock backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ResourceManager pings registered dependencies on a heartbeat and keeps the
// latest outcome for the health endpoint.
type ResourceManager struct {
	resources         map[string]Pinger
	status            map[string]string
	mu                sync.RWMutex
	stopChan          chan struct{}
	heartbeatInterval time.Duration
	pingTimeout       time.Duration
}

func NewResourceManagerService(cfg map[string]interface{}) *ResourceManager {
	interval := 30 * time.Second
	if val, ok := cfg["heartbeat_interval"]; ok {
		switch v := val.(type) {
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				interval = d
			}
		case int:
			interval = time.Duration(v) * time.Second
		case float64:
			interval = time.Duration(v) * time.Second
		}
	}
	return &ResourceManager{
		resources:         make(map[string]Pinger),
		status:            make(map[string]string),
		stopChan:          make(chan struct{}),
		heartbeatInterval: interval,
		pingTimeout:       5 * time.Second,
	}
}

func (rm *ResourceManager) Name() string { return "resourcemanager" }

func (rm *ResourceManager) Start() error {
	logger.Audit("resource manager started", zap.Strings("resources", rm.ListResources()))
	rm.Check(context.Background())
	go rm.heartbeatLoop()
	return nil
}

func (rm *ResourceManager) Stop() error {
	close(rm.stopChan)
	return nil
}

func (rm *ResourceManager) heartbeatLoop() {
	ticker := time.NewTicker(rm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			rm.Check(context.Background())
		}
	}
}

// Check pings every resource and records the results. An empty message means
// the resource answered.
func (rm *ResourceManager) Check(ctx context.Context) map[string]string {
	rm.mu.RLock()
	targets := make(map[string]Pinger, len(rm.resources))
	for k, v := range rm.resources {
		targets[k] = v
	}
	rm.mu.RUnlock()

	results := make(map[string]string, len(targets))
	for name, p := range targets {
		pctx, cancel := context.WithTimeout(ctx, rm.pingTimeout)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			logger.L().Warn("resource unhealthy", zap.String("resource", name), zap.Error(err))
			continue
		}
		results[name] = ""
	}

	rm.mu.Lock()
	for name, msg := range results {
		if _, still := rm.resources[name]; still {
			rm.status[name] = msg
		}
	}
	rm.mu.Unlock()
	return results
}

// Health returns the last recorded state per resource and whether all were
// reachable.
func (rm *ResourceManager) Health() (map[string]string, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make(map[string]string, len(rm.resources))
	healthy := true
	for name := range rm.resources {
		msg, checked := rm.status[name]
		switch {
		case !checked:
			out[name] = "unknown"
		case msg == "":
			out[name] = "ok"
		default:
			out[name] = msg
			healthy = false
		}
	}
	return out, healthy
}

func (rm *ResourceManager) AddResource(key string, p Pinger) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.resources[key] = p
}

func (rm *ResourceManager) GetResource(key string) (Pinger, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	p, exists := rm.resources[key]
	return p, exists
}

func (rm *ResourceManager) RemoveResource(key string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.resources, key)
	delete(rm.status, key)
}

func (rm *ResourceManager) ListResources() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	keys := make([]string, 0, len(rm.resources))
	for key := range rm.resources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
