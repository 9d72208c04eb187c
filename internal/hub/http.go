package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPSource downloads from a Hugging Face style hub:
//
//	{base}/{model_id}/resolve/main/{file}
type HTTPSource struct {
	base   string
	client *http.Client
}

// NewHTTPSource creates a source rooted at base. A nil client means
// http.DefaultClient.
func NewHTTPSource(base string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{base: strings.TrimRight(base, "/"), client: client}
}

// URL returns the download URL for a file.
func (s *HTTPSource) URL(modelID, file string) string {
	return s.base + "/" + modelID + "/resolve/main/" + url.PathEscape(file)
}

// Open issues a single GET. 404 maps to ErrNotFound; other non-200
// responses are errors.
func (s *HTTPSource) Open(ctx context.Context, modelID, file string) (io.ReadCloser, int64, error) {
	u := s.URL(modelID, file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("hub: get %s: %w", u, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, u)
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("hub: get %s: %s", u, resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}

func (s *HTTPSource) String() string {
	return s.base
}
