package pool

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// positionResponse is the shape a pool indexer returns: per-symbol
// token amounts proportional to the caller's LP share.
type positionResponse struct {
	Positions map[string]float64 `json:"positions"`
}

// restReader is a Reader backed by a single HTTP JSON endpoint
// (GET /positions). JLP and ALP both use this shape; only name and URL differ.
type restReader struct {
	name string
	http *resty.Client
}

// NewJLPReader builds a Reader for the JLP pool indexer at baseURL.
func NewJLPReader(baseURL string) Reader {
	return newRestReader("jlp", baseURL)
}

// NewALPReader builds a Reader for the ALP pool indexer at baseURL.
func NewALPReader(baseURL string) Reader {
	return newRestReader("alp", baseURL)
}

func newRestReader(name, baseURL string) *restReader {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &restReader{name: name, http: client}
}

func (r *restReader) Name() string { return r.name }

// FetchIdealPositions calls the indexer's /positions endpoint with the
// caller's LP share and returns the raw per-symbol token amounts.
func (r *restReader) FetchIdealPositions(ctx context.Context, lpAmount float64) (map[string]float64, error) {
	var result positionResponse
	resp, err := r.http.R().
		SetContext(ctx).
		SetQueryParam("lp_amount", fmt.Sprintf("%f", lpAmount)).
		SetResult(&result).
		Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("%s: fetch positions: %w", r.name, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s: fetch positions: status %d: %s", r.name, resp.StatusCode(), resp.String())
	}
	return result.Positions, nil
}
