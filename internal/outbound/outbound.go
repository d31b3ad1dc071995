// Package outbound implements the HttpRequest wire tag's server-side
// proxy: the ConnectionActor hands it a client-specified method/url/
// headers/body and gets back a status/headers/body triple, per §6's
// outbound HTTP helper contract.
//
// This is the one component in the engine built directly on net/http
// rather than a pack dependency — no example repo in the retrieval pack
// wraps an outbound HTTP client behind anything beyond the standard
// library (sovereign and the rest of the pack only ever use net/http as
// an HTTP *server*), so there is no third-party client to adopt here.
package outbound

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/temochka/lantern/internal/lerr"
	"github.com/temochka/lantern/internal/wire"
)

// timeout bounds how long an outbound request may run. The spec names no
// explicit timeout for this path (§5: "no explicit timeouts"), but an
// unbounded client-driven HTTP call would otherwise be the one place a
// slow network, not a slow SQLite statement, can stall a connection
// indefinitely; this is a deliberate deviation recorded in DESIGN.md.
const timeout = 30 * time.Second

var client = &http.Client{Timeout: timeout}

// Do performs req and returns the response shape the wire protocol sends
// back under the HttpRequest tag. A non-UTF-8 response body is reported
// as body=null rather than failing the request.
func Do(ctx context.Context, req wire.OutboundHTTPRequest) (wire.OutboundHTTPResponse, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader([]byte(*req.Body))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return wire.OutboundHTTPResponse{}, lerr.New(lerr.Transport, err)
	}
	for _, h := range req.Headers {
		httpReq.Header.Add(h[0], h[1])
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return wire.OutboundHTTPResponse{}, lerr.New(lerr.Transport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.OutboundHTTPResponse{}, lerr.New(lerr.Transport, err)
	}

	var bodyOut *string
	if utf8.Valid(respBody) {
		s := string(respBody)
		bodyOut = &s
	}

	headers := make([][2]string, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, [2]string{name, v})
		}
	}

	return wire.OutboundHTTPResponse{
		Status:  uint16(resp.StatusCode),
		Headers: headers,
		Body:    bodyOut,
	}, nil
}
