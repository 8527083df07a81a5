// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqtt publishes the telemetry store and the latest history point
// to an MQTT broker.
package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Thermoquad/pi30gate/internal/config"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
)

// OptsFromConfig builds client options with a retained offline will on the
// bridge state topic.
func OptsFromConfig(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("pi30gate_%d", rand.IntN(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = BridgeStateTopic(cfg.BaseTopic)
	opts.WillQos = 0

	return opts
}

func BridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}

func StateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/state", baseTopic)
}

func HistoryLatestTopic(baseTopic string) string {
	return fmt.Sprintf("%s/history/latest", baseTopic)
}

func DeviceEnergyTopic(baseTopic string, id uint8) string {
	return fmt.Sprintf("%s/device/%d/energy", baseTopic, id)
}

// waitToken waits for a paho token and converts a timeout into an error
func waitToken(token pahomqtt.Token, timeout time.Duration, op string) error {
	if !token.WaitTimeout(timeout) {
		return errors.New("MQTT " + op + " timed out")
	}
	return token.Error()
}
