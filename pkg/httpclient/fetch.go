package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/retry"
)

// GetJSON fetches url and decodes the JSON body into v. Transport errors,
// 429 and 5xx are retried under rc; other statuses and undecodable bodies
// are not. Bodies over limit bytes are rejected.
func GetJSON(ctx context.Context, c *http.Client, url string, rc retry.Config, limit int64, v any) error {
	if limit <= 0 {
		limit = defaults.BufferFeed
	}
	return retry.Do(ctx, rc, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Stop(err)
		}
		req.Header.Set("Accept", defaults.AcceptJSON)

		resp, err := c.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := retry.CheckStatus(url, resp.StatusCode); err != nil {
			return err
		}
		body, err := ReadBody(resp.Body, limit)
		if err != nil {
			return retry.Stop(err)
		}
		if err := jsonutil.UnmarshalLenient(body, v); err != nil {
			return retry.Stop(fmt.Errorf("decode %s: %w", url, err))
		}
		return nil
	})
}
