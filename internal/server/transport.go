package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// chunkSize is the transfer buffer size. Cancellation is checked at every
// chunk boundary so a large download can be interrupted cleanly.
const chunkSize = 64 * 1024

// fetchHTTP downloads remoteRoot/indexPath to dst via a streaming GET.
func (c *Client) fetchHTTP(ctx context.Context, remoteRoot, indexPath, dst string) error {
	u := strings.TrimRight(remoteRoot, "/") + "/" + encodeIndexPath(indexPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", u, resp.Status)
	}

	return c.writeStream(ctx, resp.Body, dst)
}

// copyLocal copies a filesystem-share file to dst with the same chunked,
// cancellable loop as HTTP downloads.
func (c *Client) copyLocal(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}

	return c.writeStream(ctx, f, dst)
}

// writeStream copies r into dst through a temporary file, reporting
// progress per chunk and renaming into place only on full success. A
// cancelled or failed transfer leaves no partial file behind.
func (c *Client) writeStream(ctx context.Context, r io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}

	var total int64
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				os.Remove(tmp.Name())
				return werr
			}

			total += int64(n)
			c.notifier().DownloadProgress(total)
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return rerr
		}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return nil
}

// encodeIndexPath converts a store index path to a URL path: backslashes
// become forward slashes and each segment is escaped.
func encodeIndexPath(indexPath string) string {
	segments := strings.Split(strings.ReplaceAll(indexPath, `\`, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/")
}
