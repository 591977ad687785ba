package wire

import "fmt"

// MaxMessageSize is the largest encoded message this implementation will
// produce or accept (the 64 KiB ceiling §6 chooses over the 9000-byte link
// MTU the RFC otherwise recommends staying under).
const MaxMessageSize = 65536

// TooLargeError is returned by Encode when the packed message exceeds
// MaxMessageSize.
type TooLargeError struct {
	Size int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("encoded message is %d bytes, exceeding the %d byte limit", e.Size, MaxMessageSize)
}

// TruncatedError is returned by Decode when github.com/miekg/dns reports the
// message as truncated (dns.ErrTruncated). Other buffer underflows, such as a
// buffer shorter than the 12-byte header, are reported as
// MalformedNameError instead.
type TruncatedError struct {
	Cause error
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("message is truncated: %s", e.Cause)
}

func (e *TruncatedError) Unwrap() error { return e.Cause }

// MalformedNameError is returned by Decode for every unpack failure other
// than dns.ErrTruncated: an unparseable name or compression pointer, and
// also any other malformed or short input.
type MalformedNameError struct {
	Cause error
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("message contains a malformed name: %s", e.Cause)
}

func (e *MalformedNameError) Unwrap() error { return e.Cause }

// UnknownTypeError classifies an RR type the decoder did not recognise.
// github.com/miekg/dns decodes these as opaque RFC 3597 records rather than
// failing, so this is never returned from Decode; it exists so callers can
// classify individual records post-decode if they choose to.
type UnknownTypeError struct {
	Type uint16
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown resource record type %d", e.Type)
}
