package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"orthoview/pkg/volerr"
)

// HTTP serves volumes from a web server. Object names are resolved
// relative to the base URL.
type HTTP struct {
	base   *url.URL
	client *http.Client
}

// NewHTTP returns a Source fetching from base. A nil client uses
// http.DefaultClient.
func NewHTTP(base string, client *http.Client) (*HTTP, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{base: u, client: client}, nil
}

// OpenWhole implements Source.
func (s *HTTP) OpenWhole(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.get(ctx, id)
}

// OpenSlice implements Source.
func (s *HTTP) OpenSlice(ctx context.Context, id string, pair AxisPair, index int) (io.ReadCloser, error) {
	return s.get(ctx, SliceKey(id, pair, index))
}

func (s *HTTP) get(ctx context.Context, name string) (io.ReadCloser, error) {
	ref, err := url.Parse(name)
	if err != nil {
		return nil, volerr.Transport(err, name)
	}
	target := s.base.ResolveReference(ref).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, volerr.Transport(err, target)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, volerr.Transport(err, target)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, volerr.Transport(fmt.Errorf("unexpected status %s", resp.Status), target)
	}
	return decompressed(resp.Body, name)
}
