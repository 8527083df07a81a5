// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Thermoquad/pi30gate/internal/config"
	"github.com/Thermoquad/pi30gate/internal/history"
	"github.com/Thermoquad/pi30gate/internal/telemetry"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 500 * time.Millisecond
	disconnectWait = 250 * time.Millisecond
)

// Message is one publication
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// Publisher periodically publishes the store and history to the broker
type Publisher struct {
	cfg    config.MQTTConfig
	client pahomqtt.Client
	store  *telemetry.Store
	series *history.Series
	logger *zap.Logger

	lastEnergy map[uint8]string
}

// NewPublisher creates a publisher for the broker in cfg. It does not
// connect until Run is called.
func NewPublisher(cfg config.MQTTConfig, store *telemetry.Store, series *history.Series, logger *zap.Logger) *Publisher {
	p := &Publisher{
		cfg:        cfg,
		store:      store,
		series:     series,
		logger:     logger.With(zap.String("component", "mqtt")),
		lastEnergy: make(map[uint8]string),
	}
	opts := OptsFromConfig(cfg)
	opts.OnConnect = p.onConnect
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		p.logger.Warn("connection lost", zap.Error(err))
	}
	p.client = pahomqtt.NewClient(opts)
	return p
}

func (p *Publisher) onConnect(c pahomqtt.Client) {
	p.logger.Info("connected to broker")
	token := c.Publish(BridgeStateTopic(p.cfg.BaseTopic), 0, true, MQTT_PAYLOAD_ONLINE)
	go func() {
		if err := waitToken(token, publishTimeout, "publish"); err != nil {
			p.logger.Warn("bridge state publish failed", zap.Error(err))
		}
	}()
}

// Messages builds the publications for the current store and series.
// Energy totals are only included when they changed since the last call.
func (p *Publisher) Messages() ([]Message, error) {
	snapshots := p.store.Snapshot()
	state, err := json.Marshal(snapshots)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	msgs := []Message{{Topic: StateTopic(p.cfg.BaseTopic), Payload: state}}

	if latest, ok := p.series.Latest(); ok {
		data, err := json.Marshal(latest)
		if err != nil {
			return nil, fmt.Errorf("encode history point: %w", err)
		}
		msgs = append(msgs, Message{Topic: HistoryLatestTopic(p.cfg.BaseTopic), Payload: data})
	}

	for _, id := range p.store.IDs() {
		snap, ok := snapshots[id]
		if !ok || p.lastEnergy[id] == snap.Energy {
			continue
		}
		p.lastEnergy[id] = snap.Energy
		msgs = append(msgs, Message{
			Topic:   DeviceEnergyTopic(p.cfg.BaseTopic, id),
			Payload: []byte(snap.Energy),
			Retain:  true,
		})
	}
	return msgs, nil
}

func (p *Publisher) publish() {
	msgs, err := p.Messages()
	if err != nil {
		p.logger.Error("build messages", zap.Error(err))
		return
	}
	for _, m := range msgs {
		if err := waitToken(p.client.Publish(m.Topic, 0, m.Retain, m.Payload), publishTimeout, "publish"); err != nil {
			p.logger.Debug("publish failed", zap.String("topic", m.Topic), zap.Error(err))
		}
	}
}

// Run connects and publishes every publish interval until ctx is cancelled.
// The offline state is published before disconnecting.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("connecting to broker",
		zap.String("host", p.cfg.Host),
		zap.Int("port", p.cfg.Port),
		zap.String("base_topic", p.cfg.BaseTopic))

	// With connect retry enabled the token completes once connected.
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
		p.client.Disconnect(uint(disconnectWait.Milliseconds()))
		return nil
	}

	ticker := time.NewTicker(p.cfg.PublishInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = waitToken(p.client.Publish(BridgeStateTopic(p.cfg.BaseTopic), 0, true, MQTT_PAYLOAD_OFFLINE),
				publishTimeout, "publish")
			p.client.Disconnect(uint(disconnectWait.Milliseconds()))
			p.logger.Info("disconnected from broker")
			return nil
		case <-ticker.C:
			if p.client.IsConnectionOpen() {
				p.publish()
			}
		}
	}
}
