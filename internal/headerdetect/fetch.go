package headerdetect

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// fetchOutcome is the raw material of one detection call: the fetched prefix
// and whether it is known to be a partial view of the resource.
type fetchOutcome struct {
	body    []byte
	partial bool
}

// fetchPrefix retrieves at most budget bytes of url. A 206 response is a true
// partial fetch. A 200 response means the server ignored Range: the body is
// truncated to the budget and marked partial only if truncation actually
// dropped bytes. Any other status is an error carried back as result data.
func (d *Detector) fetchPrefix(ctx context.Context, url string, budget int) (fetchOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchOutcome{}, err
	}
	for k, vs := range d.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", budget-1))

	resp, err := d.opts.Client.Do(req)
	if err != nil {
		return fetchOutcome{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		body, err := io.ReadAll(io.LimitReader(resp.Body, int64(budget)))
		if err != nil {
			return fetchOutcome{}, err
		}
		return fetchOutcome{body: body, partial: true}, nil
	case http.StatusOK:
		// Read one byte past the budget to learn whether truncation drops
		// anything, without pulling the whole resource into memory.
		body, err := io.ReadAll(io.LimitReader(resp.Body, int64(budget)+1))
		if err != nil {
			return fetchOutcome{}, err
		}
		if len(body) > budget {
			return fetchOutcome{body: body[:budget], partial: true}, nil
		}
		return fetchOutcome{body: body, partial: false}, nil
	default:
		return fetchOutcome{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
}
