package wordpress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/rewrite"
)

// Content collections that hold rewritable text.
const (
	KindPosts = "posts"
	KindPages = "pages"
)

// renderable is a field WordPress returns as {raw, rendered}.
type renderable struct {
	Raw      string `json:"raw"`
	Rendered string `json:"rendered"`
}

func (r renderable) text() string {
	if r.Raw != "" {
		return r.Raw
	}
	return r.Rendered
}

type contentItem struct {
	ID      int64      `json:"id"`
	Title   renderable `json:"title"`
	Content renderable `json:"content"`
}

func validKind(kind string) error {
	if kind != KindPosts && kind != KindPages {
		return errors.NewInvalidRequest("content type must be posts or pages, got " + strconv.Quote(kind))
	}
	return nil
}

// ListDocuments fetches every item of a collection (posts or pages) in all
// statuses the account may edit. The edit context returns raw content, which
// is what must be written back; rendered HTML is used only when raw is absent.
func (c *Client) ListDocuments(ctx context.Context, kind string) ([]rewrite.Document, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("context", "edit")
	query.Set("status", "any")

	var docs []rewrite.Document
	err := c.paginate(ctx, "list "+kind, apiPrefix+"/"+kind, query, func(raw json.RawMessage) (int, error) {
		var items []contentItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return 0, err
		}
		for _, item := range items {
			docs = append(docs, rewrite.Document{
				ID:      strconv.FormatInt(item.ID, 10),
				Kind:    kind,
				Title:   item.Title.text(),
				RawText: item.Content.text(),
			})
		}
		return len(items), nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// SaveDocument replaces the content of one post or page.
func (c *Client) SaveDocument(ctx context.Context, kind, id, text string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return errors.NewInvalidRequest("document id must be numeric, got " + strconv.Quote(id))
	}

	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return errors.NewInternal(err)
	}

	op := "update " + kind + "/" + id
	resp, err := c.send(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        apiPrefix + "/" + kind + "/" + id,
		body:        payload,
		contentType: "application/json",
	})
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return statusError(op, resp)
	}
	return nil
}
