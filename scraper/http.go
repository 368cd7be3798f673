package scraper

import (
	"fmt"
	"io"
	"net/http"
)

// maxBodySize bounds how much of any response is read.
const maxBodySize = 16 << 20

// doRequest sends req and returns the body, or a *StatusError for non-2xx.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpointOf(req), Body: string(body)}
	}
	return body, nil
}

// endpointOf drops the query string, which may carry application keys.
func endpointOf(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
