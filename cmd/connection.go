// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/pi30gate/internal/transport"
	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/gorilla/websocket"
	"golang.org/x/term"
)

// DeviceConnection is an inverter opened from the command line flags
type DeviceConnection struct {
	transport.Device
	Options pi30.Options
	Info    string
}

// Close releases the device and the HID library
func (c *DeviceConnection) Close() error {
	err := c.Device.Close()
	if deviceTransport == transport.KindHID {
		_ = transport.ExitHID()
	}
	return err
}

// OpenDevice opens the device named by --device
func OpenDevice() (*DeviceConnection, error) {
	if devicePath == "" {
		return nil, fmt.Errorf("--device must be specified")
	}

	target := transport.Target{Kind: deviceTransport, Path: devicePath, BaudRate: baudRate}
	if deviceTransport == transport.KindHID {
		if err := transport.InitHID(); err != nil {
			return nil, fmt.Errorf("failed to initialize HID: %v", err)
		}
	}

	dev, err := transport.Open(target)
	if err != nil {
		if deviceTransport == transport.KindHID {
			_ = transport.ExitHID()
		}
		return nil, fmt.Errorf("failed to open %s: %v", devicePath, err)
	}

	opts := pi30.DefaultOptions()
	opts.ReportID = deviceTransport == transport.KindHID && !rawBlocks

	info := fmt.Sprintf("HID: %s", devicePath)
	if deviceTransport == transport.KindSerial {
		info = fmt.Sprintf("Serial: %s @ %d baud", devicePath, baudRate)
	}
	return &DeviceConnection{Device: dev, Options: opts, Info: info}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*websocket.Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}
	return conn, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("PI30GATE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenGateway connects to the push feed of a running gateway given by --url
func OpenGateway() (*websocket.Conn, string, error) {
	if wsURL == "" {
		return nil, "", fmt.Errorf("--url must be specified")
	}

	password := ""
	if wsUsername != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return nil, "", err
		}
	}

	conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
}
