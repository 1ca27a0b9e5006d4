package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// HTTPDownloader fetches plain HTTP(S) media with a size cap.
type HTTPDownloader struct {
	client  *http.Client
	maxSize int64
}

// NewHTTPDownloader caps downloads at maxSize bytes; zero or less disables the cap.
func NewHTTPDownloader(client *http.Client, maxSize int64) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDownloader{client: client, maxSize: maxSize}
}

func (h *HTTPDownloader) Download(ctx context.Context, mediaURL, dest string, onProgress func(done, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download file, status: %s", resp.Status)
	}
	if h.maxSize > 0 && resp.ContentLength > h.maxSize {
		return fmt.Errorf("input file size %d exceeds limit of %d bytes", resp.ContentLength, h.maxSize)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	var body io.Reader = resp.Body
	if h.maxSize > 0 {
		body = &io.LimitedReader{R: resp.Body, N: h.maxSize + 1}
	}
	counter := &progressWriter{total: resp.ContentLength, onProgress: onProgress}
	written, err := io.Copy(out, io.TeeReader(body, counter))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to write downloaded file: %w", err)
	}
	if h.maxSize > 0 && written > h.maxSize {
		os.Remove(dest)
		return fmt.Errorf("input file size exceeds limit of %d bytes", h.maxSize)
	}
	return nil
}

type progressWriter struct {
	done       int64
	total      int64
	onProgress func(done, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.onProgress != nil {
		p.onProgress(p.done, p.total)
	}
	return len(b), nil
}
