package xtce

import (
	"fmt"

	"github.com/medley56/space-packet-parser/internal/telemetry"
)

// DefinitionError reports a malformed or unresolvable packet definition:
// bad XML structure, unresolved references, circular inheritance, or
// unsupported elements. Fatal at load time.
type DefinitionError struct {
	Msg string
}

func (e *DefinitionError) Error() string { return "definition error: " + e.Msg }

func defErrorf(format string, args ...any) error {
	return &DefinitionError{Msg: fmt.Sprintf(format, args...)}
}

// EvaluationError reports a failure while evaluating match criteria,
// calibrators, or dynamic lengths against a parse context: a reference
// to a parameter not yet parsed, or a literal that cannot be coerced.
type EvaluationError struct {
	Msg string
}

func (e *EvaluationError) Error() string { return "evaluation error: " + e.Msg }

func evalErrorf(format string, args ...any) error {
	return &EvaluationError{Msg: fmt.Sprintf(format, args...)}
}

// UnrecognizedPacketError is raised when container resolution cannot
// settle on exactly one concrete container for a packet. It carries the
// partially parsed packet and the last container reached.
type UnrecognizedPacketError struct {
	Reason    string
	Container string
	Partial   *telemetry.Packet
}

func (e *UnrecognizedPacketError) Error() string {
	return fmt.Sprintf("unrecognized packet at container %q: %s", e.Container, e.Reason)
}
