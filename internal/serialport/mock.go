package serialport

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// TestablePort implements TimeoutSerialPorter with configurable behaviour for
// testing. Without BlockReads an empty port reports io.EOF, which reads like
// a cable being pulled. With BlockReads a read waits for AddReadData, Close
// or the read timeout, in which case it returns (0, nil) like a real port.
type TestablePort struct {
	// BlockReads makes reads on an empty buffer wait. Set it before the
	// port is shared.
	BlockReads bool

	mu          sync.Mutex
	readBuf     bytes.Buffer
	writeBuf    bytes.Buffer
	readErr     error
	writeErr    error
	closeErr    error
	readTimeout time.Duration
	closed      bool
	closedCh    chan struct{}
	dataCh      chan struct{}
	readTimes   []time.Time
	writeCalls  int
}

// NewTestablePort creates a TestablePort preloaded with data.
func NewTestablePort(data ...[]byte) *TestablePort {
	p := &TestablePort{
		closedCh: make(chan struct{}),
		dataCh:   make(chan struct{}, 1),
	}
	for _, d := range data {
		p.readBuf.Write(d)
	}
	return p
}

// Read reads buffered data, honouring BlockReads and the read timeout.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	p.readTimes = append(p.readTimes, time.Now())
	for {
		if p.closed {
			p.mu.Unlock()
			return 0, ErrPortClosed
		}
		if p.readErr != nil {
			err := p.readErr
			p.readErr = nil
			p.mu.Unlock()
			return 0, err
		}
		if p.readBuf.Len() > 0 {
			n, _ := p.readBuf.Read(b)
			p.mu.Unlock()
			return n, nil
		}
		if !p.BlockReads {
			p.mu.Unlock()
			return 0, io.EOF
		}

		timeout := p.readTimeout
		p.mu.Unlock()

		var timer *time.Timer
		var expired <-chan time.Time
		if timeout > 0 {
			timer = time.NewTimer(timeout)
			expired = timer.C
		}
		select {
		case <-p.dataCh:
		case <-p.closedCh:
		case <-expired:
			return 0, nil
		}
		if timer != nil {
			timer.Stop()
		}
		p.mu.Lock()
	}
}

// Write records written bytes.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeCalls++
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.writeErr = nil
		return 0, err
	}
	return p.writeBuf.Write(b)
}

// Close marks the port closed and wakes blocked readers. It is safe to call
// more than once.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		close(p.closedCh)
	}
	return p.closeErr
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *TestablePort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = timeout
	return nil
}

// AddReadData appends data for subsequent reads.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	p.readBuf.Write(data)
	p.mu.Unlock()
	p.wake()
}

// InjectReadError makes the next read fail with err.
func (p *TestablePort) InjectReadError(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
	p.wake()
}

// InjectWriteError makes the next write fail with err.
func (p *TestablePort) InjectWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// SetCloseError sets the error returned by Close.
func (p *TestablePort) SetCloseError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeErr = err
}

func (p *TestablePort) wake() {
	select {
	case p.dataCh <- struct{}{}:
	default:
	}
}

// ReadTimes returns the time each Read call started.
func (p *TestablePort) ReadTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Time, len(p.readTimes))
	copy(out, p.readTimes)
	return out
}

// ReadCalls returns the number of Read calls.
func (p *TestablePort) ReadCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.readTimes)
}

// Buffered returns the number of bytes not yet read.
func (p *TestablePort) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readBuf.Len()
}

// WrittenData returns a copy of all data written to the port.
func (p *TestablePort) WrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.writeBuf.Bytes()...)
}

// IsClosed reports whether Close was called.
func (p *TestablePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// MockFactory implements Factory for testing.
type MockFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockFactory creates a new MockFactory.
func NewMockFactory(port SerialPorter) *MockFactory {
	return &MockFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
