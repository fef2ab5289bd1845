package xtce

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/medley56/space-packet-parser/internal/bitstream"
	"github.com/medley56/space-packet-parser/internal/telemetry"
)

// Parser walks the container inheritance tree for one packet at a
// time. A parser is cheap and safe to share across goroutines; all
// per-packet state lives on the stack of Parse.
type Parser struct {
	def    *Definition
	logger *logrus.Logger

	// RootContainerName overrides the definition's root container.
	RootContainerName string

	// WordSizeBits pads binary fields to a word boundary when nonzero.
	WordSizeBits int
}

// NewParser creates a parser over an immutable definition.
func NewParser(def *Definition, logger *logrus.Logger) *Parser {
	if logger == nil {
		logger = logrus.New()
	}
	return &Parser{def: def, logger: logger, RootContainerName: def.RootContainerName}
}

// Parse decodes a single framed packet (primary header plus user data).
// It walks the container inheritance tree from the root: each
// container's entries are consumed in order, then the inheritors whose
// restriction criteria match the partial context are examined. Exactly
// one match descends; zero matches on a concrete container completes
// the packet. Bit-read and evaluation failures become
// UnrecognizedPacketError with the partial context preserved.
func (p *Parser) Parse(data []byte) (*telemetry.Packet, error) {
	pkt := telemetry.NewPacket(data)
	ctx := &ParseContext{
		Packet:       pkt,
		Cursor:       bitstream.NewCursor(data),
		WordSizeBits: p.WordSizeBits,
	}

	rootName := p.RootContainerName
	if rootName == "" {
		rootName = p.def.RootContainerName
	}
	current, ok := p.def.Containers[rootName]
	if !ok {
		return nil, defErrorf("root container %q not found in definition", rootName)
	}

	for {
		if err := p.parseEntries(ctx, current); err != nil {
			return pkt, p.unrecognized(pkt, current, err)
		}

		var match *SequenceContainer
		matches := 0
		for _, name := range current.Inheritors {
			child := p.def.Containers[name]
			ok, err := child.RestrictionCriteria.Evaluate(pkt, nil)
			if err != nil {
				return pkt, p.unrecognized(pkt, current, err)
			}
			if ok {
				match = child
				matches++
			}
		}

		switch {
		case matches == 1:
			current = match
		case matches == 0 && !current.Abstract:
			p.finish(ctx, pkt)
			return pkt, nil
		case matches == 0:
			return pkt, &UnrecognizedPacketError{
				Reason:    "abstract container has no inheritor whose restriction criteria match",
				Container: current.Name,
				Partial:   pkt,
			}
		default:
			return pkt, &UnrecognizedPacketError{
				Reason:    "restriction criteria match more than one inheritor",
				Container: current.Name,
				Partial:   pkt,
			}
		}
	}
}

// parseEntries consumes a container's entry list in order. Container
// ref entries inline the referenced container's own entries; the
// reference site ignores the target's base container and restriction
// criteria.
func (p *Parser) parseEntries(ctx *ParseContext, c *SequenceContainer) error {
	for _, entry := range c.Entries {
		switch {
		case entry.Parameter != nil:
			v, err := entry.Parameter.Type.Parse(ctx)
			if err != nil {
				return err
			}
			ctx.Packet.Set(entry.Parameter.Name, v)
		case entry.Container != nil:
			if err := p.parseEntries(ctx, entry.Container); err != nil {
				return err
			}
		}
	}
	return nil
}

// finish retains any unconsumed trailing bytes and warns when the
// definition did not account for the whole framed packet.
func (p *Parser) finish(ctx *ParseContext, pkt *telemetry.Packet) {
	if rem := ctx.Cursor.Remaining(); rem > 0 {
		trailingBytes := (rem + 7) / 8
		pkt.Trailing = pkt.Raw[len(pkt.Raw)-trailingBytes:]
		p.logger.WithFields(logrus.Fields{
			"trailing_bits": rem,
			"packet_bytes":  len(pkt.Raw),
		}).Warn("Parsed packet consumed fewer bits than the framed length")
	}
}

// unrecognized converts runtime bit-read and evaluation failures into
// UnrecognizedPacketError for the current packet; definition errors
// and existing unrecognized errors pass through.
func (p *Parser) unrecognized(pkt *telemetry.Packet, c *SequenceContainer, err error) error {
	var unrec *UnrecognizedPacketError
	if errors.As(err, &unrec) {
		return err
	}
	var defErr *DefinitionError
	if errors.As(err, &defErr) {
		return err
	}
	return &UnrecognizedPacketError{
		Reason:    err.Error(),
		Container: c.Name,
		Partial:   pkt,
	}
}
