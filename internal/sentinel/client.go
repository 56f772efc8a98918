package sentinel

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

const (
	chunkSize    = 8192
	progressStep = 10 * 1024 * 1024
	maxErrorBody = 4096
)

// Progress is one observation of a running transfer.
type Progress struct {
	Path    string
	Written int64
	// Total is zero when the response carried no Content-Range.
	Total int64
}

// Percent returns completion in percent, or -1 when the total size is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Written) / float64(p.Total) * 100.0
}

// ProgressFunc observes transfers; it is called once per 10 MiB written.
type ProgressFunc func(Progress)

// LogProgress is the default ProgressFunc.
func LogProgress(p Progress) {
	entry := log.WithField("path", p.Path)
	if pct := p.Percent(); pct >= 0 {
		entry.Infof("%.2f %%", pct)
		return
	}
	entry.Infof("size: %s", humanize.IBytes(uint64(p.Written)))
}

// FetchResult describes a completed transfer.
type FetchResult struct {
	Path     string
	Bytes    int64
	Checksum string
}

// Client talks to the provider's OData product API.
type Client struct {
	BaseURL  string
	Progress ProgressFunc
}

// NewClient returns a client for the given OData root, e.g.
// https://scihub.copernicus.eu/dhus/odata/v1.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Progress: LogProgress,
	}
}

// Probe reports whether the dataset is staged. Only the literal body "true" counts.
func (c *Client) Probe(ctx context.Context, s *Session, datasetID string) (bool, error) {
	checkURL := OnlineURL(c.BaseURL, datasetID)
	log.Debugf("checking %s for online state", checkURL)
	resp, err := s.Get(ctx, checkURL)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return false, err
	}
	return string(body) == "true", nil
}

// Trigger asks the provider to restore an archived dataset. It returns the
// response status and, for unexpected statuses, a bounded copy of the body.
// The body of a 200 response is not read.
func (c *Client) Trigger(ctx context.Context, s *Session, datasetID string) (int, string, error) {
	resp, err := s.Get(ctx, ValueURL(c.BaseURL, datasetID))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, readErrorBody(resp.Body), nil
}

// Fetch streams downloadURL into rootDir/DatasetDir(title)/<filename>, where the
// filename comes from Content-Disposition. The file is written under a temporary
// name and renamed on success, so a repeated fetch replaces the previous file.
func (c *Client) Fetch(ctx context.Context, s *Session, downloadURL, title, rootDir string) (FetchResult, error) {
	resp, err := s.Get(ctx, downloadURL)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, &StatusError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	name, err := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if err != nil {
		return FetchResult{}, err
	}
	dir, err := DatasetDir(title)
	if err != nil {
		return FetchResult{}, err
	}
	targetDir := filepath.Join(rootDir, dir)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return FetchResult{}, &IOError{Op: "mkdir", Path: targetDir, Err: err}
	}

	total := TotalFromContentRange(resp.Header.Get("Content-Range"))
	if total > 0 {
		log.WithField("path", name).Infof("file size: %d", total)
	}

	finalPath := filepath.Join(targetDir, name)
	tmp, err := os.CreateTemp(targetDir, name+".*.part")
	if err != nil {
		return FetchResult{}, &IOError{Op: "create", Path: finalPath, Err: err}
	}
	keepTmp := false
	defer func() {
		if !keepTmp {
			_ = os.Remove(tmp.Name())
		}
	}()

	written, sum, err := c.stream(tmp, resp.Body, finalPath, total)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = &IOError{Op: "close", Path: tmp.Name(), Err: closeErr}
	}
	if err != nil {
		return FetchResult{}, err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return FetchResult{}, &IOError{Op: "rename", Path: finalPath, Err: err}
	}
	keepTmp = true

	return FetchResult{Path: finalPath, Bytes: written, Checksum: sum}, nil
}

// stream copies body to dst in fixed-size chunks, hashing and reporting progress.
// Read failures are returned as-is; write failures become *IOError.
func (c *Client) stream(dst io.Writer, body io.Reader, path string, total int64) (int64, string, error) {
	buf := make([]byte, chunkSize)
	hasher := blake3.New()
	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, "", &IOError{Op: "write", Path: path, Err: err}
			}
			_, _ = hasher.Write(buf[:n])
			before := written
			written += int64(n)
			if c.Progress != nil && written/progressStep > before/progressStep {
				c.Progress(Progress{Path: path, Written: written, Total: total})
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return written, "", readErr
		}
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	_, _ = io.Copy(io.Discard, r)
	return strings.TrimSpace(string(body))
}
