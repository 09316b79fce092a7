// Package gwire implements the gRPC wire protocol over an abstract
// multiplexed stream transport: length-delimited message framing, the
// four call shapes, and the status/trailer mapping that turns stream
// termination into a structured outcome.
//
// The underlying transport (connection management, HTTP/2 framing,
// flow-control windows) is an external collaborator behind the
// interfaces in the transport package; message serialization is a
// pluggable codec.Codec.
package gwire

import (
	"errors"
	"strings"
)

// Version is the current engine version.
const Version = "0.1.0"

const userAgent = "gwire-go/" + Version

var errMalformedMethod = errors.New("gwire: malformed method name")

// parseMethod splits a full method path "/service/method" into its
// service and method components.
func parseMethod(fullMethod string) (service, method string, err error) {
	if fullMethod != "" && fullMethod[0] == '/' {
		fullMethod = fullMethod[1:]
	}
	pos := strings.LastIndex(fullMethod, "/")
	if pos == -1 {
		return "", "", errMalformedMethod
	}
	return fullMethod[:pos], fullMethod[pos+1:], nil
}
