package scanbus

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/rangescan/internal/lidar/publish"
	"github.com/banshee-data/rangescan/internal/monitoring"
)

// Config holds configuration for the scan bus.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50052")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is the number of scans queued per client before scans
	// are dropped for that client
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50052",
		MaxClients:   8,
		ClientBuffer: 4,
	}
}

// Bus serves ScanService and implements publish.Sink.
type Bus struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	scanChan  chan *publish.LaserScan
	clients   map[string]*clientStream
	clientsMu sync.RWMutex
	latest    atomic.Pointer[structpb.Struct]

	// Stats
	scanCount    atomic.Uint64
	clientCount  atomic.Int32
	droppedScans atomic.Uint64
	encodeErrors atomic.Uint64

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id     string
	scanCh chan *structpb.Struct
}

var _ ScanServiceServer = (*Bus)(nil)
var _ publish.Sink = (*Bus)(nil)

// NewBus creates a Bus with the given configuration.
func NewBus(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Bus{
		config:   cfg,
		scanChan: make(chan *publish.LaserScan, 16),
		clients:  make(map[string]*clientStream),
		stopCh:   make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (b *Bus) Start() error {
	lis, err := net.Listen("tcp", b.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := b.Serve(lis); err != nil {
		lis.Close()
		return err
	}
	return nil
}

// Serve serves on lis in the background. Start uses it with a TCP
// listener; tests pass an in-memory one.
func (b *Bus) Serve(lis net.Listener) error {
	if !b.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scan bus already running")
	}
	b.listener = lis
	b.server = grpc.NewServer()
	b.server.RegisterService(&ScanServiceDesc, b)

	b.wg.Add(2)
	go b.broadcastLoop()
	go func() {
		defer b.wg.Done()
		monitoring.Logf("[scanbus] gRPC server listening on %s", lis.Addr())
		if err := b.server.Serve(lis); err != nil && b.running.Load() {
			monitoring.Logf("[scanbus] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully stops the gRPC server. Open streams end.
func (b *Bus) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	close(b.stopCh)
	if b.server != nil {
		b.server.GracefulStop()
	}
	if b.listener != nil {
		b.listener.Close()
	}
	b.wg.Wait()
	monitoring.Logf("[scanbus] gRPC server stopped")
}

// PublishScan queues scan for every connected client. It never blocks;
// when the queue is full the scan is dropped and counted.
func (b *Bus) PublishScan(scan *publish.LaserScan) error {
	if !b.running.Load() || scan == nil {
		return nil
	}
	select {
	case b.scanChan <- scan:
		b.scanCount.Add(1)
	default:
		dropped := b.droppedScans.Add(1)
		if dropped == 1 || dropped%100 == 0 {
			monitoring.Logf("[scanbus] DROPPED scan %d (total dropped: %d), queue full", scan.Seq, dropped)
		}
	}
	return nil
}

func (b *Bus) broadcastLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			return
		case scan := <-b.scanChan:
			msg, err := ScanToStruct(scan)
			if err != nil {
				b.encodeErrors.Add(1)
				monitoring.Logf("[scanbus] %v", err)
				continue
			}
			b.latest.Store(msg)

			b.clientsMu.RLock()
			for _, client := range b.clients {
				select {
				case client.scanCh <- msg:
				default:
					// Client is slow, drop scan for this client.
					b.droppedScans.Add(1)
				}
			}
			b.clientsMu.RUnlock()
		}
	}
}

// StreamScans implements ScanServiceServer.
func (b *Bus) StreamScans(_ *emptypb.Empty, stream grpc.ServerStream) error {
	client, err := b.addClient()
	if err != nil {
		return err
	}
	defer b.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case msg := <-client.scanCh:
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// GetLatest implements ScanServiceServer.
func (b *Bus) GetLatest(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	msg := b.latest.Load()
	if msg == nil {
		return nil, status.Error(codes.NotFound, "no scan published yet")
	}
	return msg, nil
}

func (b *Bus) addClient() (*clientStream, error) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	if len(b.clients) >= b.config.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "scan bus has %d clients (max %d)", len(b.clients), b.config.MaxClients)
	}
	client := &clientStream{
		id:     uuid.NewString(),
		scanCh: make(chan *structpb.Struct, b.config.ClientBuffer),
	}
	b.clients[client.id] = client
	n := b.clientCount.Add(1)
	monitoring.Logf("[scanbus] Client connected: %s (total: %d)", client.id, n)
	return client, nil
}

func (b *Bus) removeClient(id string) {
	b.clientsMu.Lock()
	_, ok := b.clients[id]
	delete(b.clients, id)
	b.clientsMu.Unlock()
	if ok {
		n := b.clientCount.Add(-1)
		monitoring.Logf("[scanbus] Client disconnected: %s (remaining: %d)", id, n)
	}
}

// Stats returns current bus statistics.
func (b *Bus) Stats() BusStats {
	return BusStats{
		ScanCount:    b.scanCount.Load(),
		ClientCount:  b.clientCount.Load(),
		DroppedScans: b.droppedScans.Load(),
		EncodeErrors: b.encodeErrors.Load(),
		Running:      b.running.Load(),
	}
}

// BusStats contains scan bus statistics.
type BusStats struct {
	ScanCount    uint64 `json:"scan_count"`
	ClientCount  int32  `json:"client_count"`
	DroppedScans uint64 `json:"dropped_scans"`
	EncodeErrors uint64 `json:"encode_errors"`
	Running      bool   `json:"running"`
}
