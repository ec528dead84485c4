package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// maxDocumentSize caps a downloaded diagram document (64MB)
const maxDocumentSize = 64 * 1024 * 1024

// Fetcher serves diagram documents from a diagram export service
type Fetcher struct {
	base    *url.URL
	client  *http.Client
	maxSize int64
}

var _ domain.DiagramDocumentStore = (*Fetcher)(nil)

// New creates a fetcher for documents published under baseURL
func New(baseURL string, timeout time.Duration) (*Fetcher, error) {
	// Validate URL
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + strings.TrimSpace(baseURL))
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{base: u, client: &http.Client{Timeout: timeout}, maxSize: maxDocumentSize}, nil
}

// URL returns the location of a diagram document
func (f *Fetcher) URL(diagramID domain.ID) string {
	u := *f.base
	u.Path = fmt.Sprintf("%s/%d.xml", u.Path, diagramID)
	return u.String()
}

// GetRawDocument downloads a diagram document. A 404 means there is none;
// an oversized document is reported as malformed.
func (f *Fetcher) GetRawDocument(ctx context.Context, diagramID domain.ID) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(diagramID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "pathwayqa/1.0")
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.StoreError("fetch diagram", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, domain.StoreError("fetch diagram", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	// Read one byte past the cap to detect oversized documents
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, domain.StoreError("read diagram", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, &domain.MalformedDiagramError{
			DiagramID: diagramID,
			Err:       fmt.Errorf("document exceeds %d bytes", f.maxSize),
		}
	}
	return body, nil
}
