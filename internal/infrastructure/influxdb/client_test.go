package influxdb

import (
	"errors"
	"testing"

	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{connected: false}

	err := c.HealthCheck(t.Context())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_NilClient(t *testing.T) {
	c := &Client{}

	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client = %v, want nil", err)
	}
}

func TestWrites_Disconnected(t *testing.T) {
	// Writes on a disconnected client must be silent no-ops.
	c := &Client{connected: false}

	c.WriteDeliveryEvent("TRK-1", 1, "delivered")
	c.WriteCollectionEvent("TRK-1", 1, false)
	c.WriteBoxCommand(1, "unlock", 7)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()
}
