// Package command parses the text command protocol received on the
// MQTT command topic.
//
// The grammar is a single line of the form "<verb>:<args>". The only
// verb with semantics is "measure", whose args are
// "<amount>,<delay_ms>" with both fields base-10 unsigned integers.
// Any other verb parses successfully into [Unknown] so the dispatcher
// can report it; malformed measure arguments parse into typed errors
// so the dispatcher can log the specific failure.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is one parsed protocol message. The concrete types are
// [Measure] and [Unknown].
type Command interface {
	isCommand()
}

// Measure instructs the device to take Amount sensor readings, waiting
// DelayMS milliseconds before each one. Amount zero is legal and
// performs no readings.
type Measure struct {
	Amount  uint64
	DelayMS uint64
}

// Unknown carries a syntactically valid verb with no registered
// semantics. It is not a parse error; the dispatcher logs and drops it.
type Unknown struct {
	Verb string
}

func (Measure) isCommand() {}
func (Unknown) isCommand() {}

// ErrEmptyCommand is returned for an empty command string.
var ErrEmptyCommand = &ParseError{Kind: "invalid_command_string", msg: "empty command string"}

// ErrMissingArgs is returned when "measure" arrives without an
// argument segment (no ":" separator).
var ErrMissingArgs = &ParseError{Kind: "missing_args", msg: `command "measure" is missing its argument segment`}

// ParseError describes why a command line could not be parsed. Kind is
// a stable identifier suitable for structured log fields.
type ParseError struct {
	Kind string
	msg  string
}

// Error implements the error interface.
func (e *ParseError) Error() string { return e.msg }

// ArgCountError reports a "measure" argument segment that did not
// split into exactly two comma-separated fields.
type ArgCountError struct {
	Got int
}

// Error implements the error interface.
func (e *ArgCountError) Error() string {
	return fmt.Sprintf(`wrong argument count for "measure": expected 2, got %d`, e.Got)
}

// NotANumberError reports a "measure" argument field that failed to
// parse as an unsigned decimal integer. Field is "amount" or
// "delay_ms"; Raw is the offending text.
type NotANumberError struct {
	Field string
	Raw   string
}

// Error implements the error interface.
func (e *NotANumberError) Error() string {
	return fmt.Sprintf("argument %q is not an unsigned integer: %q", e.Field, e.Raw)
}

// Parse converts one decoded command line into a [Command]. It is a
// pure function: no side effects, no retained references to line.
func Parse(line string) (Command, error) {
	if line == "" {
		return nil, ErrEmptyCommand
	}

	verb, args, hasArgs := strings.Cut(line, ":")
	if verb != "measure" {
		return Unknown{Verb: verb}, nil
	}
	if !hasArgs {
		return nil, ErrMissingArgs
	}

	fields := strings.Split(args, ",")
	if len(fields) != 2 {
		return nil, &ArgCountError{Got: len(fields)}
	}

	amount, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, &NotANumberError{Field: "amount", Raw: fields[0]}
	}
	delay, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, &NotANumberError{Field: "delay_ms", Raw: fields[1]}
	}

	return Measure{Amount: amount, DelayMS: delay}, nil
}
