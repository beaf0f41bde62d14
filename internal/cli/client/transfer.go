package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Progress reports how much of an upload has been sent
type Progress struct {
	Loaded  int64
	Total   int64
	Percent int
}

// ProgressFunc receives upload progress; it may be called zero or more times
type ProgressFunc func(Progress)

// Upload sends the file at filePath as the "file" field of a multipart
// request and decodes the JSON response into out
func (c *Client) Upload(ctx context.Context, path, filePath string, onProgress ProgressFunc, out any) error {
	body, contentType, err := multipartBody(filePath)
	if err != nil {
		return c.setupFailed(http.MethodPost, path, err)
	}

	var reader io.Reader = body
	if onProgress != nil {
		reader = &progressReader{
			r:          body,
			total:      int64(body.Len()),
			onProgress: onProgress,
		}
	}

	resp, err := c.send(ctx, http.MethodPost, path, nil, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decode(resp, out)
}

// Download fetches a binary payload. The file is written to filename only
// when the caller supplies one.
func (c *Client) Download(ctx context.Context, path, filename string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, decodeError(resp.StatusCode, err)
	}

	if filename != "" {
		if err := os.WriteFile(filename, data, 0600); err != nil {
			return nil, setupError(fmt.Errorf("failed to save %s: %w", filename, err))
		}
	}

	return data, nil
}

func multipartBody(filePath string) (*bytes.Buffer, string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`,
		escapeQuotes(filepath.Base(filePath))))
	header.Set("Content-Type", mimetype.Detect(data).String())

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader reports every read of the request body
type progressReader struct {
	r          io.Reader
	loaded     int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		percent := 0
		if p.total > 0 {
			percent = int(math.Round(float64(p.loaded) * 100 / float64(p.total)))
		}
		p.onProgress(Progress{Loaded: p.loaded, Total: p.total, Percent: percent})
	}
	return n, err
}

// Size lets send declare the body length instead of streaming it chunked
func (p *progressReader) Size() int64 {
	return p.total
}
