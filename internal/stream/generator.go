// Package stream drives repeated packet parses over a byte source,
// framing CCSDS packets by their primary-header length field.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medley56/space-packet-parser/internal/bitstream"
	"github.com/medley56/space-packet-parser/internal/telemetry"
	"github.com/medley56/space-packet-parser/internal/xtce"
)

// SourceError reports a failure of the underlying byte source: an I/O
// error, a socket timeout, or EOF in the middle of a framed packet.
// Source errors terminate iteration.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source error while %s: %v", e.Op, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// Progress is passed to the progress callback after each packet.
type Progress struct {
	BytesRead     uint64
	PacketsParsed uint64
	Elapsed       time.Duration
}

// Config holds the generator options.
type Config struct {
	// RootContainerName overrides the definition's root container.
	RootContainerName string

	// YieldUnrecognizedErrors makes Next return unrecognized-packet
	// errors inline instead of silently skipping those packets.
	YieldUnrecognizedErrors bool

	// SkipSecondaryHeaderBytes drops this many bytes after the primary
	// header before handing user data to the parser, for packets whose
	// fixed secondary header is described out-of-band.
	SkipSecondaryHeaderBytes int

	// HeaderNameMap renames the seven primary-header fields, keyed by
	// standard name.
	HeaderNameMap map[string]string

	// ParseHeadersOnly emits packets carrying only the seven header
	// fields, without walking the definition.
	ParseHeadersOnly bool

	// WordSizeBytes pads binary fields to a word boundary when nonzero.
	WordSizeBytes int

	// ReadTimeout bounds each read when the source is a net.Conn.
	// A timeout is terminal.
	ReadTimeout time.Duration

	// BufferReadSize is the per-read chunk size. Defaults to 4096.
	BufferReadSize int

	// Progress, when set, is called after each framed packet.
	Progress func(Progress)
}

// Generator is a pull-based packet stream: the consumer drives
// iteration by calling Next. It is not safe for concurrent use; create
// one generator per goroutine (the definition may be shared).
type Generator struct {
	src    io.Reader
	cfg    Config
	parser *xtce.Parser
	logger *logrus.Logger

	buf  []byte
	pos  int
	eof  bool
	done bool

	bytesRead uint64
	packets   uint64
	start     time.Time
}

// New creates a generator reading framed packets from src and parsing
// them against def. def may be nil only when cfg.ParseHeadersOnly is
// set.
func New(def *xtce.Definition, src io.Reader, cfg Config, logger *logrus.Logger) (*Generator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.BufferReadSize <= 0 {
		cfg.BufferReadSize = 4096
	}
	g := &Generator{src: src, cfg: cfg, logger: logger, start: time.Now()}
	if def == nil {
		if !cfg.ParseHeadersOnly {
			return nil, errors.New("a packet definition is required unless parsing headers only")
		}
	} else {
		g.parser = xtce.NewParser(def, logger)
		if cfg.RootContainerName != "" {
			g.parser.RootContainerName = cfg.RootContainerName
		}
		g.parser.WordSizeBits = cfg.WordSizeBytes * 8
	}
	return g, nil
}

// Next returns the next parsed packet. It returns io.EOF when the
// source is drained cleanly (a trailing fragment shorter than a
// primary header is discarded with a warning). When
// YieldUnrecognizedErrors is set, an *xtce.UnrecognizedPacketError is
// returned inline and iteration may continue; a *SourceError is
// terminal.
func (g *Generator) Next() (*telemetry.Packet, error) {
	if g.done {
		return nil, io.EOF
	}
	for {
		header, err := g.peek(telemetry.HeaderLengthBytes)
		if err != nil {
			return nil, g.terminate(err)
		}
		if header == nil {
			return nil, g.terminate(nil)
		}

		dataLen := (int(header[4])<<8 | int(header[5])) + 1
		total := telemetry.HeaderLengthBytes + dataLen

		frame, err := g.peek(total)
		if err != nil {
			return nil, g.terminate(err)
		}
		if frame == nil {
			// EOF after a complete header but before the full packet.
			return nil, g.terminate(&SourceError{
				Op:  "reading packet body",
				Err: fmt.Errorf("EOF %d bytes into a %d-byte packet: %w", len(g.buf)-g.pos, total, io.ErrUnexpectedEOF),
			})
		}

		packetBytes := make([]byte, total)
		copy(packetBytes, frame)
		g.pos += total
		g.bytesRead += uint64(total)
		g.packets++
		if g.cfg.Progress != nil {
			g.cfg.Progress(Progress{BytesRead: g.bytesRead, PacketsParsed: g.packets, Elapsed: time.Since(g.start)})
		}

		if g.cfg.ParseHeadersOnly {
			return g.headerPacket(packetBytes), nil
		}

		if skip := g.cfg.SkipSecondaryHeaderBytes; skip > 0 && skip < dataLen {
			trimmed := make([]byte, 0, total-skip)
			trimmed = append(trimmed, packetBytes[:telemetry.HeaderLengthBytes]...)
			trimmed = append(trimmed, packetBytes[telemetry.HeaderLengthBytes+skip:]...)
			packetBytes = trimmed
		}

		pkt, err := g.parser.Parse(packetBytes)
		if err != nil {
			var unrec *xtce.UnrecognizedPacketError
			if errors.As(err, &unrec) {
				if g.cfg.YieldUnrecognizedErrors {
					return nil, unrec
				}
				g.logger.WithFields(logrus.Fields{
					"container": unrec.Container,
					"reason":    unrec.Reason,
				}).Debug("Skipping unrecognized packet")
				continue
			}
			return nil, g.terminate(err)
		}

		if g.cfg.SkipSecondaryHeaderBytes == 0 {
			if err := g.crossCheckLength(pkt, dataLen); err != nil {
				return nil, g.terminate(err)
			}
		}
		return pkt, nil
	}
}

// crossCheckLength verifies the definition parsed the same PKT_LEN the
// framing header carried. A mismatch means the CCSDS header is
// misdescribed in the definition.
func (g *Generator) crossCheckLength(pkt *telemetry.Packet, dataLen int) error {
	name := g.headerName("PKT_LEN")
	v, ok := pkt.Get(name)
	if !ok {
		return nil
	}
	raw, ok := v.Raw.(uint64)
	if !ok {
		return nil
	}
	if int(raw)+1 != dataLen {
		return fmt.Errorf("definition parsed PKT_LEN=%d but framing header says %d; "+
			"the CCSDS header may be misdescribed in the packet definition", raw, dataLen-1)
	}
	return nil
}

// headerPacket extracts only the seven primary-header fields.
func (g *Generator) headerPacket(frame []byte) *telemetry.Packet {
	pkt := telemetry.NewPacket(frame)
	cur := bitstream.NewCursor(frame[:telemetry.HeaderLengthBytes])
	for _, f := range telemetry.HeaderFields {
		raw, _ := cur.ReadUint(f.NBits)
		pkt.Set(g.headerName(f.Name), telemetry.Value{Raw: raw})
	}
	return pkt
}

func (g *Generator) headerName(std string) string {
	if alt, ok := g.cfg.HeaderNameMap[std]; ok {
		return alt
	}
	return std
}

// peek fills the buffer to n unread bytes and returns them without
// consuming. Returns (nil, nil) when the source is drained before n
// bytes are available.
func (g *Generator) peek(n int) ([]byte, error) {
	// Trim consumed bytes once they grow large, preserving unread data.
	if g.pos > 1<<20 {
		g.buf = append(g.buf[:0:0], g.buf[g.pos:]...)
		g.pos = 0
	}
	for len(g.buf)-g.pos < n && !g.eof {
		if conn, ok := g.src.(net.Conn); ok && g.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout)); err != nil {
				return nil, &SourceError{Op: "setting read deadline", Err: err}
			}
		}
		chunk := make([]byte, g.cfg.BufferReadSize)
		m, err := g.src.Read(chunk)
		if m > 0 {
			g.buf = append(g.buf, chunk[:m]...)
		}
		if err == io.EOF {
			g.eof = true
			break
		}
		if err != nil {
			return nil, &SourceError{Op: "reading from source", Err: err}
		}
	}
	if len(g.buf)-g.pos < n {
		return nil, nil
	}
	return g.buf[g.pos : g.pos+n], nil
}

// terminate finishes iteration, logging final statistics. A nil err
// means clean EOF.
func (g *Generator) terminate(err error) error {
	g.done = true
	if leftover := len(g.buf) - g.pos; leftover > 0 && err == nil {
		g.logger.WithField("bytes", leftover).Warn("Discarding trailing fragment shorter than a CCSDS primary header")
	}
	g.logger.WithFields(logrus.Fields{
		"bytes_parsed":   g.bytesRead,
		"packets_parsed": g.packets,
		"elapsed":        time.Since(g.start).String(),
	}).Info("Packet stream finished")
	if err == nil {
		return io.EOF
	}
	return err
}
