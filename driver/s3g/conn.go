package s3g

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/magnomatos822/replicatorg/driver"
	"github.com/magnomatos822/replicatorg/protocol"
)

type frame struct {
	payload []byte
	err     error
}

// Conn carries packets over a byte stream, one request and response at a
// time.
type Conn struct {
	rwc     io.ReadWriteCloser
	timeout time.Duration
	log     logrus.FieldLogger

	respCh  chan frame
	closeCh chan struct{}
	deadCh  chan struct{}
	done    chan struct{}
	readErr error

	mx        sync.Mutex
	closeOnce sync.Once
}

// NewConn starts reading frames from rwc. A response that does not arrive
// within timeout fails the round trip with a timeout error.
func NewConn(rwc io.ReadWriteCloser, timeout time.Duration, log logrus.FieldLogger) *Conn {
	c := &Conn{
		rwc:     rwc,
		timeout: timeout,
		log:     log,
		respCh:  make(chan frame, 1),
		closeCh: make(chan struct{}),
		deadCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	defer close(c.done)
	fr := protocol.NewFrameReader(c.rwc)
	for {
		payload, err := fr.ReadFrame()
		var pe *protocol.Error
		if err != nil && !errors.As(err, &pe) {
			c.readErr = err
			close(c.deadCh)
			return
		}
		if err != nil {
			c.log.WithError(err).Debug("discarding bad frame")
		}
		select {
		case c.respCh <- frame{payload: payload, err: err}:
		case <-c.closeCh:
			return
		}
	}
}

// drain discards responses that arrived after their request timed out.
func (c *Conn) drain() {
	for {
		select {
		case f := <-c.respCh:
			c.log.WithField("payload", f.payload).Debug("dropping stale response")
		default:
			return
		}
	}
}

// RoundTrip sends p and waits for its response. The returned error is a
// *protocol.Error for transient failures and a *driver.StopError when the
// connection is gone.
func (c *Conn) RoundTrip(p protocol.Packet) (*protocol.Response, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	select {
	case <-c.closeCh:
		return nil, driver.Fatal("connection closed", io.ErrClosedPipe)
	case <-c.deadCh:
		return nil, driver.Fatal("connection lost", c.readErr)
	default:
	}

	c.drain()
	if _, err := c.rwc.Write(p); err != nil {
		return nil, driver.Fatal("write packet", err)
	}

	t := time.NewTimer(c.timeout)
	defer t.Stop()

	select {
	case f := <-c.respCh:
		if f.err != nil {
			return nil, f.err
		}
		return protocol.ParseResponse(f.payload)
	case <-t.C:
		return nil, &protocol.Error{Kind: protocol.KindTimeout, Msg: fmt.Sprintf("no response to code %d after %s", p.Code(), c.timeout)}
	case <-c.deadCh:
		return nil, driver.Fatal("connection lost", c.readErr)
	case <-c.closeCh:
		return nil, driver.Fatal("connection closed", io.ErrClosedPipe)
	}
}

// Done is closed when the reader goroutine has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close aborts any in-progress round trip and closes the stream.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.rwc.Close()
	})
	return err
}
