package port

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Bridge is a serial port on another host, relayed over a websocket.
// Binary messages carry port bytes in both directions. Text messages carry
// JSON status from the bridge.
type Bridge struct {
	ws  *websocket.Conn
	log logrus.FieldLogger

	wmx sync.Mutex

	pr *io.PipeReader
	pw *io.PipeWriter

	mx    sync.RWMutex
	ports []BridgePort

	closeOnce sync.Once
	done      chan struct{}
}

// BridgePort is a port as reported by the bridge.
type BridgePort struct {
	Name         string
	Friendly     string
	SerialNumber string
	IsOpen       bool
	Baud         int
	USBVID       string
	USBPID       string
}

type bridgeError struct {
	Error string
}

type bridgePortList struct {
	SerialPorts []BridgePort
}

func parseBridgeMessage(data []byte) (interface{}, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	var val interface{}
	switch {
	case msg["Error"] != nil:
		val = &bridgeError{}
	case msg["SerialPorts"] != nil:
		val = &bridgePortList{}
	default:
		return nil, errors.New("unknown message: " + string(data))
	}
	return val, json.Unmarshal(data, val)
}

// DialBridge connects to the bridge at cfg.Bridge and asks it to open
// cfg.Name at cfg.Baud.
func DialBridge(ctx context.Context, cfg Config) (*Bridge, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.Bridge)
	if err != nil {
		return nil, fmt.Errorf("bridge url: %w", err)
	}
	q := u.Query()
	q.Set("port", cfg.Name)
	q.Set("baud", strconv.Itoa(cfg.Baud))
	u.RawQuery = q.Encode()

	log := cfg.Logger.WithField("bridge", u.Host)
	log.WithField("port", cfg.Name).Info("connecting to bridge")
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	b := &Bridge{
		ws:   ws,
		log:  log,
		done: make(chan struct{}),
	}
	b.pr, b.pw = io.Pipe()
	go b.readLoop()
	return b, nil
}

func (b *Bridge) readLoop() {
	defer close(b.done)
	for {
		typ, data, err := b.ws.ReadMessage()
		if err != nil {
			b.pw.CloseWithError(err)
			return
		}
		if typ == websocket.BinaryMessage {
			if _, err := b.pw.Write(data); err != nil {
				return
			}
			continue
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// echo of a command
			continue
		}
		val, err := parseBridgeMessage(data)
		if err != nil {
			b.log.WithError(err).Warn("bridge message")
			continue
		}
		switch v := val.(type) {
		case *bridgeError:
			b.log.WithField("error", v.Error).Error("bridge reported an error")
		case *bridgePortList:
			b.mx.Lock()
			b.ports = v.SerialPorts
			b.mx.Unlock()
		}
	}
}

// Ports returns the last port list the bridge sent.
func (b *Bridge) Ports() []BridgePort {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return append([]BridgePort(nil), b.ports...)
}

func (b *Bridge) Read(p []byte) (int, error) { return b.pr.Read(p) }

func (b *Bridge) Write(p []byte) (int, error) {
	b.wmx.Lock()
	defer b.wmx.Unlock()
	if err := b.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the websocket and waits for the reader to stop.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.wmx.Lock()
		b.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		b.wmx.Unlock()
		err = b.ws.Close()
		b.pr.Close()
		<-b.done
	})
	return err
}
