package appmanager

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"CoopLedgerSaas/api"
	"CoopLedgerSaas/internal/config"
	"CoopLedgerSaas/internal/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name    string
	log     *[]string
	stopErr error
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start() error {
	*s.log = append(*s.log, "start "+s.name)
	return nil
}

func (s *recordingService) Stop() error {
	*s.log = append(*s.log, "stop "+s.name)
	return s.stopErr
}

func TestStartAllDefersResourceManagerAndStopsInReverse(t *testing.T) {
	var log []string
	am := NewAppManager()
	am.RegisterService(&recordingService{name: "logger", log: &log})
	am.RegisterService(&recordingService{name: "resourcemanager", log: &log})
	am.RegisterService(&recordingService{name: "cron", log: &log, stopErr: errors.New("busy")})
	am.RegisterService(&recordingService{name: "gateway", log: &log})

	require.NoError(t, am.StartAll())
	assert.Equal(t, []string{"start logger", "start cron", "start gateway", "start resourcemanager"}, log)

	log = nil
	err := am.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron")
	assert.Equal(t, []string{"stop gateway", "stop cron", "stop resourcemanager", "stop logger"}, log)
}

func TestStartAllSkipsStartedServices(t *testing.T) {
	var log []string
	am := NewAppManager()
	am.RegisterService(&recordingService{name: "gateway", log: &log})
	require.NoError(t, am.StartAll())
	require.NoError(t, am.StartAll())
	assert.Equal(t, []string{"start gateway"}, log)
}

func TestLoadServiceSequenceSortsByStartOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
services:
  - name: gateway
    start_order: 4
  - name: logger
    start_order: 1
    config:
      folder_path: ./logs
  - name: resourcemanager
    start_order: 2
`), 0o644))

	seq, err := LoadServiceSequence(path)
	require.NoError(t, err)
	require.Len(t, seq, 3)
	assert.Equal(t, []string{"logger", "resourcemanager", "gateway"}, []string{seq[0].Name, seq[1].Name, seq[2].Name})
	assert.Equal(t, "./logs", seq[0].Config["folder_path"])
}

func TestAutoRegisterServices(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Port: 9123, ReadTimeout: time.Minute}}
	am := NewAppManager()
	err := am.AutoRegisterServices([]ServiceConfig{
		{Name: "resourcemanager", Config: map[string]interface{}{"heartbeat_interval": "1m"}},
		{Name: "gateway"},
	}, Deps{
		Config:    cfg,
		Resources: map[string]resource.Pinger{"postgres": resource.PingFunc(nil)},
	})
	require.NoError(t, err)

	rm, ok := am.GetServiceByName("resourcemanager").(*resource.ResourceManager)
	require.True(t, ok)
	assert.Equal(t, []string{"postgres"}, rm.ListResources())

	gw, ok := am.GetServiceByName("gateway").(*api.GatewayService)
	require.True(t, ok)
	assert.Equal(t, "gateway", gw.Name())
}

func TestAutoRegisterRejectsUnknownAndIncomplete(t *testing.T) {
	am := NewAppManager()
	err := am.AutoRegisterServices([]ServiceConfig{{Name: "fx"}}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"fx"`)

	err = NewAppManager().AutoRegisterServices([]ServiceConfig{{Name: "cron"}}, Deps{Config: &config.Config{}})
	require.Error(t, err)
}

func TestGatewayConfigPrefersTypedServerSection(t *testing.T) {
	out := gatewayConfig(map[string]interface{}{"port": 8080, "extra": true}, config.ServerConfig{Port: 9000, WriteTimeout: 2 * time.Minute})
	assert.Equal(t, 9000, out["port"])
	assert.Equal(t, "2m0s", out["write_timeout"])
	assert.Equal(t, true, out["extra"])
	assert.NotContains(t, out, "read_timeout")
}

func TestDefaultServiceSequenceIsBuildable(t *testing.T) {
	names := map[string]bool{}
	for _, s := range DefaultServiceSequence() {
		_, ok := serviceConstructors[s.Name]
		assert.True(t, ok, s.Name)
		names[s.Name] = true
	}
	assert.Len(t, names, 4)
}
