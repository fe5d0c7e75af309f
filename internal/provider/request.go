package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketpulse/internal/httpx"
)

// RequestTimeout bounds every provider network call.
const RequestTimeout = 5 * time.Second

// Request describes one JSON GET against a provider.
type Request struct {
	Provider string
	URL      string
	Header   http.Header
	Timeout  time.Duration
}

// GetJSON performs req and decodes the body into out. Every failure is
// returned as a *FetchError classified by cause.
func GetJSON(ctx context.Context, client httpx.Doer, req Request, out any) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return &FetchError{Provider: req.Provider, Kind: KindUnknown, Err: fmt.Errorf("creating request: %w", err)}
	}
	hreq.Header.Set("Accept", "application/json")
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	res, err := client.Do(hreq)
	if err != nil {
		return &FetchError{Provider: req.Provider, Kind: Classify(err), Err: fmt.Errorf("performing request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return &FetchError{
			Provider:   req.Provider,
			Kind:       KindHTTPStatus,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("GET %s: %s", redact(hreq), string(b)),
		}
	}

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if k := Classify(err); k == KindTimeout || k == KindNetworkUnreachable {
			return &FetchError{Provider: req.Provider, Kind: k, Err: fmt.Errorf("reading body: %w", err)}
		}
		return &FetchError{Provider: req.Provider, Kind: KindSchemaMismatch, Err: fmt.Errorf("decoding body: %w", err)}
	}
	return nil
}

// redact strips the query string, which often carries API keys.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
