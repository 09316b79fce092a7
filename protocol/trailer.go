package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/metadata"
	"github.com/gwirelabs/gwire/status"
)

// Reserved metadata keys. StatusKey and MessageKey carry the terminal
// Status in trailers; TimeoutKey carries the caller's deadline in leading
// headers; EncodingKey names the negotiated compression algorithm.
const (
	StatusKey   = "grpc-status"
	MessageKey  = "grpc-message"
	TimeoutKey  = "grpc-timeout"
	EncodingKey = "grpc-encoding"
)

func isReservedKey(k string) bool {
	switch k {
	case StatusKey, MessageKey, TimeoutKey, EncodingKey:
		return true
	}
	return false
}

// StatusToTrailer renders st into trailing metadata: the code as a
// decimal string, the message percent-encoded, and any additional Status
// metadata as further entries.
func StatusToTrailer(st *status.Status) metadata.MD {
	md := make(metadata.MD, 2+st.Metadata().Len())
	for k, vs := range st.Metadata() {
		if isReservedKey(strings.ToLower(k)) {
			continue
		}
		md.Set(k, vs...)
	}
	md.Set(StatusKey, strconv.Itoa(int(st.Code())))
	md.Set(MessageKey, PercentEncode(st.Message()))
	return md
}

// StatusFromTrailer recovers the Status from trailing metadata. ok is
// false when the status-code trailer is absent entirely, which callers
// must treat as an error in its own right. An unparsable code maps to
// Unknown rather than failing the parse.
func StatusFromTrailer(md metadata.MD) (st *status.Status, ok bool) {
	vals := md.Get(StatusKey)
	if len(vals) == 0 {
		return nil, false
	}

	var msg string
	if mv := md.Get(MessageKey); len(mv) > 0 {
		msg = PercentDecode(mv[0])
	}

	code, err := strconv.ParseUint(vals[0], 10, 32)
	if err != nil || !codes.Code(code).Valid() {
		return status.Newf(codes.Unknown, "malformed grpc-status %q", vals[0]), true
	}

	st = status.New(codes.Code(code), msg)
	var extra metadata.MD
	for k, vs := range md {
		if isReservedKey(k) {
			continue
		}
		if extra == nil {
			extra = metadata.MD{}
		}
		extra.Set(k, vs...)
	}
	if extra != nil {
		st = st.WithMetadata(extra)
	}
	return st, true
}

// PercentEncode escapes the status message for transmission in a trailer
// value. It is a variant of URL-encoding with fewer reserved characters:
// only bytes outside the printable ASCII range and '%' itself are
// escaped, keeping the wire form readable.
func PercentEncode(msg string) string {
	for i := 0; i < len(msg); i++ {
		if c := msg[i]; c < ' ' || c > '~' || c == '%' {
			return percentEncodeSlow(msg, i)
		}
	}
	return msg
}

// msg needs some escaping. Bytes before offset are clean and copied
// through as-is.
func percentEncodeSlow(msg string, offset int) string {
	var out strings.Builder
	out.Grow(len(msg) + 3)
	out.WriteString(msg[:offset])
	for i := offset; i < len(msg); i++ {
		c := msg[i]
		if c < ' ' || c > '~' || c == '%' {
			fmt.Fprintf(&out, "%%%02X", c)
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

// PercentDecode reverses PercentEncode. Invalid escapes decode to the
// Unicode replacement rune instead of failing; a garbled message must not
// mask the status code it travels with.
func PercentDecode(encoded string) string {
	for i := 0; i < len(encoded); i++ {
		if c := encoded[i]; c == '%' && i+2 < len(encoded) {
			return percentDecodeSlow(encoded, i)
		}
	}
	return encoded
}

func percentDecodeSlow(encoded string, offset int) string {
	var out strings.Builder
	out.Grow(len(encoded))
	out.WriteString(encoded[:offset])
	for i := offset; i < len(encoded); i++ {
		c := encoded[i]
		if c != '%' || i+2 >= len(encoded) {
			out.WriteByte(c)
			continue
		}
		parsed, err := strconv.ParseUint(encoded[i+1:i+3], 16, 8)
		if err != nil {
			out.WriteRune(utf8.RuneError)
		} else {
			out.WriteByte(byte(parsed))
		}
		i += 2
	}
	return out.String()
}
