package appmanager

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"CoopLedgerSaas/api"
	"CoopLedgerSaas/internal/config"
	"CoopLedgerSaas/internal/jobs"
	"CoopLedgerSaas/internal/logger"
	"CoopLedgerSaas/internal/resource"
	"CoopLedgerSaas/internal/serviceiface"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Deps are the built components the registered services run on top of.
type Deps struct {
	Config    *config.Config
	Routes    func(*mux.Router)
	Resources map[string]resource.Pinger
	Pending   jobs.Pending
	Extractor jobs.Extractor
	Matcher   jobs.Matcher
}

type constructor func(cfg map[string]interface{}, am *AppManager) (serviceiface.Service, error)

var serviceConstructors = map[string]constructor{
	"logger": func(cfg map[string]interface{}, _ *AppManager) (serviceiface.Service, error) {
		return logger.NewLoggerService(cfg), nil
	},
	"resourcemanager": func(cfg map[string]interface{}, am *AppManager) (serviceiface.Service, error) {
		rm := resource.NewResourceManagerService(cfg)
		for name, p := range am.deps.Resources {
			rm.AddResource(name, p)
		}
		return rm, nil
	},
	"cron": func(_ map[string]interface{}, am *AppManager) (serviceiface.Service, error) {
		d := am.deps
		if d.Config == nil || d.Pending == nil || d.Extractor == nil || d.Matcher == nil {
			return nil, fmt.Errorf("cron needs the extraction and matching engines")
		}
		return jobs.NewCronService(d.Config.Jobs, d.Config.Matching.Threshold, d.Pending, d.Extractor, d.Matcher, logger.L()), nil
	},
	"gateway": func(cfg map[string]interface{}, am *AppManager) (serviceiface.Service, error) {
		if am.deps.Config == nil {
			return nil, fmt.Errorf("gateway needs the server config")
		}
		var health api.HealthReporter
		if rm, ok := am.GetServiceByName("resourcemanager").(*resource.ResourceManager); ok {
			health = rm
		}
		return api.NewGatewayService(gatewayConfig(cfg, am.deps.Config.Server), api.NewRouter(health, am.deps.Routes)), nil
	},
}

// gatewayConfig layers the typed server section over the service map so the
// HTTP_PORT override always applies.
func gatewayConfig(cfg map[string]interface{}, server config.ServerConfig) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range cfg {
		out[k] = v
	}
	if server.Port > 0 {
		out["port"] = server.Port
	}
	if server.ReadTimeout > 0 {
		out["read_timeout"] = server.ReadTimeout.String()
	}
	if server.WriteTimeout > 0 {
		out["write_timeout"] = server.WriteTimeout.String()
	}
	return out
}

// ------------------- MANAGER -------------------

type AppManager struct {
	services []serviceiface.Service
	started  map[string]bool
	deps     Deps
	mu       sync.Mutex
}

func NewAppManager() *AppManager {
	return &AppManager{
		services: make([]serviceiface.Service, 0),
		started:  map[string]bool{},
	}
}

func (am *AppManager) RegisterService(s serviceiface.Service) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.services = append(am.services, s)
}

// Bootstrap registers and starts the logger ahead of everything else so the
// components built afterwards log through it. Without a logger entry it does
// nothing.
func (am *AppManager) Bootstrap(configs []ServiceConfig) error {
	for _, svc := range configs {
		if svc.Name != "logger" {
			continue
		}
		l := logger.NewLoggerService(svc.Config)
		if err := l.Start(); err != nil {
			return fmt.Errorf("failed to start service logger: %w", err)
		}
		logger.SetGlobalLogger(l)
		am.RegisterService(l)
		am.mu.Lock()
		am.started[l.Name()] = true
		am.mu.Unlock()
	}
	return nil
}

// AutoRegisterServices builds every configured service not registered yet.
// Unknown names are an error so a typo in services.yaml fails startup.
func (am *AppManager) AutoRegisterServices(configs []ServiceConfig, deps Deps) error {
	am.deps = deps
	for _, svc := range configs {
		if am.GetServiceByName(svc.Name) != nil {
			continue
		}
		build, ok := serviceConstructors[svc.Name]
		if !ok {
			return fmt.Errorf("unknown service %q in service sequence", svc.Name)
		}
		service, err := build(svc.Config, am)
		if err != nil {
			return fmt.Errorf("build service %s: %w", svc.Name, err)
		}
		am.RegisterService(service)
		if l, ok := service.(*logger.LoggerService); ok {
			logger.SetGlobalLogger(l)
		}
	}
	return nil
}

// StartAll starts services in registration order, leaving the resource
// manager for last so its first health check sees the others running.
func (am *AppManager) StartAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()

	start := func(service serviceiface.Service) error {
		if am.started[service.Name()] {
			return nil
		}
		logger.L().Info("starting service", zap.String("service", service.Name()))
		if err := service.Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
		am.started[service.Name()] = true
		return nil
	}

	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			continue
		}
		if err := start(service); err != nil {
			return err
		}
	}
	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			if err := start(service); err != nil {
				return err
			}
		}
	}
	return nil
}

// StopAll stops started services in reverse registration order. Every service
// gets its Stop call; the first error is returned.
func (am *AppManager) StopAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	var firstErr error
	for i := len(am.services) - 1; i >= 0; i-- {
		svc := am.services[i]
		if !am.started[svc.Name()] {
			continue
		}
		if svc.Name() != "logger" {
			logger.L().Info("stopping service", zap.String("service", svc.Name()))
		}
		if err := svc.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop service %s: %w", svc.Name(), err)
		}
		delete(am.started, svc.Name())
	}
	return firstErr
}

func (am *AppManager) GetServiceByName(name string) serviceiface.Service {
	am.mu.Lock()
	defer am.mu.Unlock()
	for _, svc := range am.services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}

// ------------------- YAML CONFIG -------------------

type ServiceSequencer struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name       string                 `yaml:"name"`
	StartOrder int                    `yaml:"start_order"`
	Config     map[string]interface{} `yaml:"config"`
}

// LoadServiceSequence reads the services list from path, sorted by
// start_order.
func LoadServiceSequence(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seq ServiceSequencer
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, err
	}
	sort.SliceStable(seq.Services, func(i, j int) bool {
		return seq.Services[i].StartOrder < seq.Services[j].StartOrder
	})
	return seq.Services, nil
}

// DefaultServiceSequence is used when services.yaml has no services list.
func DefaultServiceSequence() []ServiceConfig {
	return []ServiceConfig{
		{Name: "logger", StartOrder: 1, Config: map[string]interface{}{"folder_path": "./logs", "max_file_mb": 50, "retention_days": 7}},
		{Name: "resourcemanager", StartOrder: 2, Config: map[string]interface{}{"heartbeat_interval": "30s"}},
		{Name: "cron", StartOrder: 3},
		{Name: "gateway", StartOrder: 4},
	}
}
