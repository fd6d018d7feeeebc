package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpungsan/wpswap/internal/asset"
	"github.com/hpungsan/wpswap/internal/errors"
)

// mediaItem is the subset of a /wp/v2/media record the pipeline needs.
type mediaItem struct {
	ID           int64  `json:"id"`
	SourceURL    string `json:"source_url"`
	MimeType     string `json:"mime_type"`
	MediaDetails struct {
		File  string `json:"file"`
		Sizes map[string]struct {
			SourceURL string `json:"source_url"`
		} `json:"sizes"`
	} `json:"media_details"`
}

// toAsset converts a media record. Size variants are ordered by size name
// so repeated listings produce identical URL lists.
func (m mediaItem) toAsset() asset.RemoteAsset {
	names := make([]string, 0, len(m.MediaDetails.Sizes))
	for name := range m.MediaDetails.Sizes {
		names = append(names, name)
	}
	sort.Strings(names)

	sizeURLs := make([]string, 0, len(names))
	for _, name := range names {
		if u := m.MediaDetails.Sizes[name].SourceURL; u != "" {
			sizeURLs = append(sizeURLs, u)
		}
	}

	r := asset.NewRemoteAsset(m.ID, "", m.SourceURL, sizeURLs)
	r.MimeType = m.MimeType
	return r
}

// ListMedia fetches the whole media library, page by page.
func (c *Client) ListMedia(ctx context.Context) ([]asset.RemoteAsset, error) {
	var out []asset.RemoteAsset
	err := c.paginate(ctx, "list media", apiPrefix+"/media", nil, func(raw json.RawMessage) (int, error) {
		var items []mediaItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return 0, err
		}
		for _, item := range items {
			out = append(out, item.toAsset())
		}
		return len(items), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UploadMedia uploads a local file as a new media record.
// The POST is not retried on 5xx or network errors since WordPress may already
// have stored the file.
func (c *Client) UploadMedia(ctx context.Context, local asset.LocalAsset) (*asset.RemoteAsset, error) {
	data, err := os.ReadFile(local.Path)
	if err != nil {
		return nil, errors.NewUploadFailed(local.Path, 0, err.Error())
	}

	name := local.Name
	if name == "" {
		name = filepath.Base(local.Path)
	}
	body, contentType, err := multipartBody(name, data)
	if err != nil {
		return nil, errors.NewUploadFailed(local.Path, 0, err.Error())
	}

	resp, err := c.send(ctx, request{
		op:          "upload media",
		method:      http.MethodPost,
		path:        apiPrefix + "/media",
		body:        body,
		contentType: contentType,
		timeout:     c.uploadTimeout,
		noRetry:     true,
	})
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) {
			return nil, err
		}
		return nil, errors.NewUploadFailed(local.Path, 0, err.Error())
	}
	if resp.status != http.StatusCreated {
		remote := statusError("upload media", resp)
		failed := errors.NewUploadFailed(local.Path, resp.status, remote.Message)
		if hint, ok := remote.Details["hint"]; ok {
			failed.Details["hint"] = hint
		}
		return nil, failed
	}

	var item mediaItem
	if err := json.Unmarshal(resp.body, &item); err != nil {
		return nil, errors.NewUploadFailed(local.Path, resp.status, "decode response: "+err.Error())
	}
	if item.SourceURL == "" {
		return nil, errors.NewUploadFailed(local.Path, resp.status, "response has no source_url")
	}
	r := item.toAsset()
	return &r, nil
}

// multipartBody builds a form with a single "file" part.
func multipartBody(filename string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", contentTypeFor(filename))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func contentTypeFor(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}
	return "application/octet-stream"
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
