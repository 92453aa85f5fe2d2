package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"farmersaid/internal/errorutil"
	"farmersaid/internal/logger"
)

// User-Agent for upstream requests
const userAgent = "FarmersAid/1.0"

// newRestClient builds a resty client for one upstream. Requests are not
// retried and use the transport's default timeout; an outage is reported to
// the caller as an Unavailable outcome instead.
func newRestClient(source, baseURL string) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(0)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.LogAPIRequest(source, req.Method, req.URL)
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.LogAPIResponse(source, resp.Request.Method, resp.Request.URL, resp.StatusCode(), resp.Time(), len(resp.Body()))
		return nil
	})

	return client
}

// request describes a single GET against an upstream
type request struct {
	source    string
	operation string
	path      string
	query     map[string]string
	headers   map[string]string
}

// fetch issues the request and returns the body of a 200 response. Any other
// status, or a transport failure, comes back as a *errorutil.NetworkError.
func fetch(ctx context.Context, client *resty.Client, r request) ([]byte, error) {
	endpoint := client.BaseURL + r.path

	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(r.query).
		SetHeaders(r.headers).
		Get(r.path)
	if err != nil {
		return nil, errorutil.LogNetworkError(logger.Get().Logger, errorutil.NewNetworkError(r.source, r.operation, endpoint, err))
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, errorutil.LogNetworkError(logger.Get().Logger, errorutil.NewStatusError(r.source, r.operation, endpoint, resp.StatusCode(), resp.Body()))
	}

	return resp.Body(), nil
}
