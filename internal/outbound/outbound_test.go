package outbound

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/temochka/lantern/internal/wire"
)

func TestDoRoundTripsStatusHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("missing X-Test header on upstream request")
		}
		w.Header().Set("X-Reply", "ok")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	body := "ignored for GET"
	resp, err := Do(t.Context(), wire.OutboundHTTPRequest{
		Method:  http.MethodGet,
		URL:     server.URL,
		Headers: [][2]string{{"X-Test", "yes"}},
		Body:    &body,
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Errorf("Status = %d, want %d", resp.Status, http.StatusCreated)
	}
	if resp.Body == nil || *resp.Body != "hello" {
		t.Errorf("Body = %+v, want %q", resp.Body, "hello")
	}

	found := false
	for _, h := range resp.Headers {
		if h[0] == "X-Reply" && h[1] == "ok" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected X-Reply header in response, got %+v", resp.Headers)
	}
}

func TestDoReportsNonUTF8BodyAsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xff, 0xfe, 0xfd})
	}))
	defer server.Close()

	resp, err := Do(t.Context(), wire.OutboundHTTPRequest{Method: http.MethodGet, URL: server.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Body != nil {
		t.Errorf("Body = %q, want nil for non-UTF-8 content", *resp.Body)
	}
}

func TestDoTransportErrorIsReported(t *testing.T) {
	_, err := Do(t.Context(), wire.OutboundHTTPRequest{Method: http.MethodGet, URL: "http://127.0.0.1:0"})
	if err == nil {
		t.Fatal("expected a transport error for an unreachable URL")
	}
}
