package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fscore/internal/domain"
)

// ErrNotFound is returned when the relay has no entry for an identity.
var ErrNotFound = errors.New("relay: not found")

// HTTP is a RelayClient talking to a relay over HTTP.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the relay at base.
func NewHTTP(base string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: client}
}

func (c *HTTP) PublishContact(ctx context.Context, contact domain.Contact) error {
	return c.post(ctx, "/directory", contact, nil)
}

func (c *HTTP) FetchContact(ctx context.Context, id domain.Identity) (domain.Contact, error) {
	var out domain.Contact
	if err := c.getJSON(ctx, "/directory/"+url.PathEscape(id.String()), &out); err != nil {
		return domain.Contact{}, err
	}
	return out, nil
}

func (c *HTTP) SendMessage(ctx context.Context, msg domain.Message) error {
	return c.post(ctx, "/msg/"+url.PathEscape(msg.To.String()), msg, nil)
}

func (c *HTTP) FetchMessages(ctx context.Context, id domain.Identity, limit int) ([]domain.Message, error) {
	path := "/msg/" + url.PathEscape(id.String())
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var msgs []domain.Message
	if err := c.getJSON(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *HTTP) AckMessages(ctx context.Context, id domain.Identity, count int) error {
	return c.post(ctx, "/msg/"+url.PathEscape(id.String())+"/ack", ackRequest{Count: count}, nil)
}

func (c *HTTP) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusError(http.MethodPost, path, resp); err != nil {
		return err
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusError(http.MethodGet, path, resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(method, path string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("relay %s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("relay %s %s: %s", method, path, resp.Status)
	}
	return nil
}

var _ domain.RelayClient = (*HTTP)(nil)
