// Package refresh listens for materialization triggers from the external
// scheduler. The scheduler publishes the hour to rebuild, formatted
// YYYY-MM-DDTHH, to an MQTT topic after the warehouse load for that hour
// lands.
package refresh

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"fleet-mds-provider/internal/config"
	"fleet-mds-provider/internal/freshness"
	"fleet-mds-provider/internal/materializer"
	"fleet-mds-provider/pkg/mqtt"
)

// Trigger subscribes to the refresh topic and runs the materializer for each
// announced hour.
type Trigger struct {
	client *mqtt.Client
	mat    *materializer.Materializer
	cfg    *config.RefreshConfig
	log    *zap.Logger
}

func NewTrigger(mat *materializer.Materializer, cfg *config.RefreshConfig, log *zap.Logger) *Trigger {
	client := mqtt.NewClient(&mqtt.Config{
		Broker:               cfg.Broker,
		ClientID:             cfg.ClientID,
		Username:             cfg.Username,
		Password:             cfg.Password,
		CleanSession:         false,
		KeepAlive:            30,
		ConnectTimeout:       10,
		AutoReconnect:        true,
		MaxReconnectInterval: time.Minute,
	})

	return &Trigger{
		client: client,
		mat:    mat,
		cfg:    cfg,
		log:    log,
	}
}

// Start connects and subscribes. Runs are spawned per message so a slow
// rebuild does not block subsequent triggers for other hours.
func (t *Trigger) Start(ctx context.Context) error {
	if err := t.client.Connect(); err != nil {
		return err
	}

	return t.client.Subscribe(t.cfg.Topic, byte(t.cfg.QoS), func(topic string, payload []byte) {
		hourParam := strings.TrimSpace(string(payload))
		hour, err := freshness.ParseHour(hourParam)
		if err != nil {
			t.log.Warn("ignoring malformed refresh trigger",
				zap.String("topic", topic),
				zap.String("payload", hourParam),
				zap.Error(err))
			return
		}

		go t.run(ctx, hour)
	})
}

func (t *Trigger) run(ctx context.Context, hour freshness.HourBucket) {
	runCtx, cancel := context.WithTimeout(ctx, t.cfg.RunTimeout)
	defer cancel()

	res, err := t.mat.MaterializeHour(runCtx, hour)
	if err != nil {
		t.log.Error("scheduled materialization failed",
			zap.String("hour", hour.String()),
			zap.Error(err))
		return
	}

	t.log.Info("scheduled materialization completed",
		zap.String("hour", hour.String()),
		zap.Int("trips", res.TripsWritten),
		zap.Int("events", res.EventsWritten),
		zap.Int("snapshots", res.SnapshotsWritten))
}

// Stop disconnects from the broker.
func (t *Trigger) Stop() {
	t.client.Unsubscribe(t.cfg.Topic)
	t.client.Disconnect()
}
