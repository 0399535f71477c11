package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
)

// OutgoingRequest is what a Transport sends for one attempt.
type OutgoingRequest struct {
	Method  string
	URL     string
	Headers Headers
	Body    []byte
}

// RawResponse is what a Transport received for one attempt.
type RawResponse struct {
	StatusCode int
	Status     string
	Header     nethttp.Header
	Body       []byte
}

// Transport performs exactly one attempt. It returns an error only when no response
// was obtained; HTTP error statuses are responses.
type Transport interface {
	RoundTrip(ctx context.Context, req *OutgoingRequest) (*RawResponse, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *OutgoingRequest) (*RawResponse, error)

// RoundTrip calls f(ctx, req).
func (f TransportFunc) RoundTrip(ctx context.Context, req *OutgoingRequest) (*RawResponse, error) {
	return f(ctx, req)
}

// HTTPTransport sends attempts through a net/http client. Per-attempt timeouts come
// from the context the executor passes in, so the client itself needs no Timeout.
type HTTPTransport struct {
	client *nethttp.Client
}

// NewHTTPTransport wraps client; nil uses a fresh http.Client.
func NewHTTPTransport(client *nethttp.Client) *HTTPTransport {
	if client == nil {
		client = &nethttp.Client{}
	}
	return &HTTPTransport{client: client}
}

// RoundTrip sends req and reads the whole response body.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *OutgoingRequest) (*RawResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 && bodyAllowed(req.Method) {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, NewValidationError("failed to create HTTP request: "+err.Error(), "url")
	}
	httpReq.Header = req.Headers.HTTPHeader()

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError("request execution failed", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}

	return &RawResponse{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
