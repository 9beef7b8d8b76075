package sheets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"sheetcal/internal/fsutil"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
)

// cacheMeta holds HTTP validators for one export URL.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CSVURL downloads CSV exports (for example a published Google Sheet) with
// ETag / Last-Modified revalidation and a disk cache. A cached body is
// served when the network or the server fails.
type CSVURL struct {
	client   *http.Client
	cacheDir string
}

// NewCSVURL creates a fetcher caching under cacheDir.
func NewCSVURL(cacheDir string) *CSVURL {
	if cacheDir == "" {
		cacheDir = "./var/csv-cache"
	}
	return &CSVURL{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

func (c *CSVURL) FetchGrid(ctx context.Context, loc Locator) (model.Grid, error) {
	body, _, err := c.fetch(ctx, loc.URL)
	if err != nil {
		return model.Grid{}, err
	}
	rows, err := parseCSV(bytes.NewReader(body))
	if err != nil {
		return model.Grid{}, fmt.Errorf("parse csv from %s: %w", redactURL(loc.URL), err)
	}
	return toGrid(rows)
}

// fetch returns the body and whether it came from the cache.
func (c *CSVURL) fetch(ctx context.Context, rawURL string) ([]byte, bool, error) {
	if rawURL == "" {
		return nil, false, errors.New("source URL is empty")
	}

	dir := c.cachePath(rawURL)
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.csv"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("csv fetch start", "url", redactURL(rawURL))

	resp, err := c.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("csv fetch network error, using cached body", err, "url", redactURL(rawURL))
			return cached, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		meta := cacheMeta{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(dir, meta, body); err != nil {
			appLog.Error("csv cache save failed", err, "url", redactURL(rawURL))
		}
		appLog.Info("csv fetch success", "url", redactURL(rawURL), "bytes", len(body))
		return body, false, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, false, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("csv fetch not modified; using cache", "url", redactURL(rawURL))
		return cached, true, nil

	default:
		if len(cached) > 0 {
			appLog.Error("csv fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(rawURL), "status", resp.StatusCode)
			return cached, true, nil
		}
		return nil, false, errors.New(resp.Status)
	}
}

func (c *CSVURL) cachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func saveCache(dir string, meta cacheMeta, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, "body.csv"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; export links carry their access
// token in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "csv://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
