package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Open returns a CSV stream over feed, a local path or an http(s) URL.
// The timeout bounds the whole download of a remote feed.
func Open(ctx context.Context, feed string, timeout time.Duration) (*CSVStream, error) {
	if feed == "" {
		return nil, fmt.Errorf("no feed configured")
	}

	var (
		rc  io.ReadCloser
		err error
	)
	if strings.HasPrefix(feed, "http://") || strings.HasPrefix(feed, "https://") {
		rc, err = fetch(ctx, feed, timeout)
	} else {
		rc, err = os.Open(feed)
	}
	if err != nil {
		return nil, err
	}

	s, err := NewCSV(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("feed %s: %w", feed, err)
	}
	return s, nil
}

func fetch(ctx context.Context, url string, timeout time.Duration) (io.ReadCloser, error) {
	client := &http.Client{
		Timeout: timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	log.Info("feed fetched", "url", url, "status", resp.StatusCode, "latency", time.Since(start))
	return resp.Body, nil
}
