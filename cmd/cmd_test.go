// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/pi30gate/internal/config"
	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replyPort answers every write with a fixed response
type replyPort struct {
	reply   []byte
	pending []byte
	readErr error
}

func (p *replyPort) Write(b []byte) (int, error) {
	p.pending = append([]byte(nil), p.reply...)
	return len(b), nil
}

func (p *replyPort) ReadWithTimeout(b []byte, _ time.Duration) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func frameResponse(payload string) []byte {
	covered := append([]byte{pi30.StartByte}, payload...)
	hi, lo := pi30.Checksum(covered)
	return append(covered, hi, lo, pi30.Terminator)
}

func fastOptions() pi30.Options {
	return pi30.Options{ResponseTimeout: 50 * time.Millisecond, ReadTimeout: time.Millisecond, DrainTimeout: time.Millisecond}
}

const legacyReply = "1 92932105100005 L 00 000.0 00.00 230.0 50.00 0460 0412 009 53.2 001 097 000.0 000"

func TestProbeOnce_Valid(t *testing.T) {
	port := &replyPort{reply: frameResponse(legacyReply)}

	r := probeOnce(port, "QPGS1", fastOptions(), pi30.LegacyLayout())
	require.NoError(t, r.readErr)
	require.NoError(t, r.decodeErr)
	assert.Empty(t, r.validation)
	assert.True(t, r.ok())
	assert.Len(t, r.fields, 16)
	assert.Contains(t, r.summary(), "OK 16 fields")

	stats := pi30.NewStatistics()
	r.record(stats)
	assert.Equal(t, uint64(1), stats.ValidResponses)
}

func TestProbeOnce_NoResponse(t *testing.T) {
	port := &replyPort{}

	r := probeOnce(port, "QPGS1", fastOptions(), pi30.LegacyLayout())
	assert.ErrorIs(t, r.readErr, pi30.ErrNoResponse)
	assert.False(t, r.ok())

	stats := pi30.NewStatistics()
	r.record(stats)
	assert.Equal(t, uint64(1), stats.NoResponse)
}

func TestProbeOnce_ReadError(t *testing.T) {
	port := &replyPort{readErr: errors.New("device unplugged")}

	r := probeOnce(port, "QPGS1", fastOptions(), pi30.LegacyLayout())
	require.Error(t, r.readErr)
	assert.Contains(t, r.summary(), "device unplugged")
}

func TestProbeOnce_ShortResponse(t *testing.T) {
	port := &replyPort{reply: frameResponse("1 92932105100005 L")}

	r := probeOnce(port, "QPGS1", fastOptions(), pi30.LegacyLayout())
	require.NoError(t, r.decodeErr)
	require.Len(t, r.validation, 1)
	assert.Equal(t, pi30.ANOMALY_SHORT_RESPONSE, r.validation[0].Type)
	assert.Contains(t, r.summary(), "LAYOUT")

	stats := pi30.NewStatistics()
	r.record(stats)
	assert.Equal(t, uint64(0), stats.ValidResponses)
}

func TestProbeOnce_NAK(t *testing.T) {
	port := &replyPort{reply: frameResponse("NAK")}

	r := probeOnce(port, "QPGS1", fastOptions(), pi30.LegacyLayout())
	assert.ErrorIs(t, r.decodeErr, pi30.ErrNAK)
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "just now", formatAge(300*time.Millisecond))
	assert.Equal(t, "1 second", formatAge(time.Second))
	assert.Equal(t, "42 seconds", formatAge(42*time.Second))
	assert.Equal(t, "1 minute and 5 seconds", formatAge(65*time.Second))
	assert.Equal(t, "2 hours", formatAge(2*time.Hour))
	assert.Equal(t, "1 day, 1 hour, and 1 minute", formatAge(25*time.Hour+time.Minute))
}

func testState(now time.Time) map[uint8]telemetry.Snapshot {
	return map[uint8]telemetry.Snapshot{
		1: {Label: "Master", Fields: []string{"1"}, Energy: "1.00", LastUpdate: now.Add(-3 * time.Second)},
		2: {Label: "Slave", Fields: []string{"2"}, Energy: "2.00", LastUpdate: now.Add(-time.Second)},
	}
}

func TestDecodePush(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	state := testState(now)

	data, err := json.Marshal(state)
	require.NoError(t, err)
	got, err := decodePush(websocket.TextMessage, data)
	require.NoError(t, err)
	assert.Equal(t, "Slave", got["2"].Label)

	data, err = cbor.Marshal(state)
	require.NoError(t, err)
	got, err = decodePush(websocket.BinaryMessage, data)
	require.NoError(t, err)
	assert.Equal(t, "Master", got["1"].Label)

	_, err = decodePush(websocket.TextMessage, []byte("not json"))
	assert.Error(t, err)
}

func TestFreshest(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	got, err := decodePush(websocket.TextMessage, mustJSON(t, testState(now)))
	require.NoError(t, err)

	id, age, ok := freshest(got, now)
	require.True(t, ok)
	assert.Equal(t, "2", id)
	assert.Equal(t, time.Second, age)

	_, _, ok = freshest(map[string]telemetry.Snapshot{}, now)
	assert.False(t, ok)
}

func TestMonitorRows(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newMonitorModel("test", pi30.LegacyLayout())
	m.state = map[string]telemetry.Snapshot{
		"2":  {Label: "Slave", Fields: []string{"2"}, Energy: "0.00", LastUpdate: now},
		"1":  {Label: "Master", Fields: []string{"1", "x", "L", "", "", "", "", "", "", "500", "", "100", "2", "", "50", "4"}, Energy: "3.50", LastUpdate: now.Add(-2 * time.Second)},
		"xx": {Label: "Ignored"},
	}

	rows := m.rows(now)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0][0])
	assert.Equal(t, "400", rows[0][2], "100*2 + 50*4")
	assert.Equal(t, "500", rows[0][3])
	assert.Equal(t, "3.50", rows[0][4])
	assert.Equal(t, "2 seconds", rows[0][6])
	assert.Equal(t, "-", rows[1][2], "short responses have no power")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestNeedsHID(t *testing.T) {
	serial := config.DeviceConfig{ID: 1, Path: "/dev/ttyUSB0", Transport: config.TransportSerial}
	hid := config.DeviceConfig{ID: 2, Path: "/dev/hidraw0", Transport: config.TransportHID}
	unset := config.DeviceConfig{ID: 3, Path: "/dev/hidraw1"}

	assert.False(t, needsHID(nil))
	assert.False(t, needsHID([]config.DeviceConfig{serial}), "serial only deployments skip hidapi")
	assert.True(t, needsHID([]config.DeviceConfig{serial, hid}))
	assert.True(t, needsHID([]config.DeviceConfig{unset}), "empty transport opens as HID")
}
