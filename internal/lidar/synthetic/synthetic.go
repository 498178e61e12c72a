// Package synthetic generates a valid sensor byte stream for a virtual
// spinning range sensor. It backs the -dev mode of the capture service and
// the end-to-end tests.
package synthetic

import (
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/rangescan/internal/lidar/l1packets/parse"
	"github.com/banshee-data/rangescan/internal/timeutil"
)

// Profile returns the range in millimetres seen at angleDeg.
type Profile func(angleDeg float64) uint16

// Constant returns a profile that reports mm at every angle.
func Constant(mm uint16) Profile {
	return func(float64) uint16 { return mm }
}

// Room returns a profile for a sensor at the centre of a width × depth
// rectangle, both in metres.
func Room(width, depth float64) Profile {
	halfW, halfD := width/2, depth/2
	return func(angleDeg float64) uint16 {
		rad := angleDeg * math.Pi / 180
		c, s := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
		d := math.Inf(1)
		if c > 1e-9 {
			d = halfW / c
		}
		if s > 1e-9 {
			d = math.Min(d, halfD/s)
		}
		mm := d * 1000
		if mm > math.MaxUint16 {
			return math.MaxUint16
		}
		return uint16(mm)
	}
}

// Config describes the virtual sensor.
type Config struct {
	RPM           float64     // default 300
	PacketsPerRev int         // default 60
	Profile       Profile     // default Constant(500)
	Intensity     uint8       // reported for every sample
	Magic         parse.Magic // default parse.DefaultMagic
	NoiseBytes    int         // random bytes inserted before each packet
	Packets       int         // stop with io.EOF after this many packets; 0 = endless
	Seed          uint64

	// RealTime paces Read so packets arrive at the rate the configured
	// rpm implies, using Clock.
	RealTime bool
	Clock    timeutil.Clock
}

// Generator is an io.Reader producing the wire stream of the virtual
// sensor. It is not safe for concurrent use.
type Generator struct {
	cfg     Config
	rng     *rand.Rand
	seq     int
	pending []byte
}

// New returns a Generator for cfg.
func New(cfg Config) *Generator {
	if cfg.RPM <= 0 {
		cfg.RPM = 300
	}
	if cfg.PacketsPerRev <= 0 {
		cfg.PacketsPerRev = 60
	}
	if cfg.Profile == nil {
		cfg.Profile = Constant(500)
	}
	if len(cfg.Magic) == 0 {
		cfg.Magic = parse.DefaultMagic
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15)),
	}
}

// PacketInterval is the time one packet's arc takes at the configured rpm.
func (g *Generator) PacketInterval() time.Duration {
	rev := time.Duration(float64(time.Minute) / g.cfg.RPM)
	return rev / time.Duration(g.cfg.PacketsPerRev)
}

// Sent returns the number of packets generated so far.
func (g *Generator) Sent() int { return g.seq }

// NextPacket returns the next packet of the rotation.
func (g *Generator) NextPacket() parse.RawPacket {
	arc := 360.0 / float64(g.cfg.PacketsPerRev)
	start := float64(g.seq%g.cfg.PacketsPerRev) * arc
	end := math.Mod(start+arc, 360)
	g.seq++

	distances := make([]uint16, parse.SAMPLES_PER_PACKET)
	for i := range distances {
		distances[i] = g.cfg.Profile(start + arc*float64(i)/parse.SAMPLES_PER_PACKET)
	}
	p := Packet(start, end, g.cfg.RPM, distances...)
	for i := range p.Samples {
		p.Samples[i].IntensityRaw = g.cfg.Intensity
	}
	return p
}

// Read implements io.Reader.
func (g *Generator) Read(b []byte) (int, error) {
	if len(g.pending) == 0 {
		if g.cfg.Packets > 0 && g.seq >= g.cfg.Packets {
			return 0, io.EOF
		}
		if g.cfg.RealTime && g.seq > 0 {
			g.cfg.Clock.Sleep(g.PacketInterval())
		}
		for i := 0; i < g.cfg.NoiseBytes; i++ {
			g.pending = append(g.pending, g.noiseByte())
		}
		g.pending = append(g.pending, parse.Encode(g.NextPacket(), g.cfg.Magic)...)
	}
	n := copy(b, g.pending)
	g.pending = g.pending[n:]
	return n, nil
}

// noiseByte returns a random byte that cannot begin the magic, so noise
// never completes a false header.
func (g *Generator) noiseByte() byte {
	for {
		b := byte(g.rng.UintN(256))
		if b != g.cfg.Magic[0] {
			return b
		}
	}
}

// Packet builds a packet spanning startDeg to endDeg. Missing distances
// are zero.
func Packet(startDeg, endDeg, rpm float64, distancesMM ...uint16) parse.RawPacket {
	p := parse.RawPacket{
		RotationSpeedRaw: parse.SpeedRaw(rpm),
		StartAngleRaw:    parse.AngleRaw(startDeg),
		EndAngleRaw:      parse.AngleRaw(endDeg),
	}
	for i := 0; i < parse.SAMPLES_PER_PACKET && i < len(distancesMM); i++ {
		p.Samples[i].DistanceRaw = distancesMM[i]
	}
	return p
}

// Stream concatenates the wire bytes of packets using the default magic.
func Stream(packets ...parse.RawPacket) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, parse.Encode(p, parse.DefaultMagic)...)
	}
	return out
}
