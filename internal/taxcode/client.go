// Package taxcode looks up Vietnamese business registrations by tax
// identifier (MST) against the VietQR business directory.
package taxcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.vietqr.io/v2/business"

// The directory answers code "00" for a hit; everything else is a miss.
const lookupOKCode = "00"

var ErrNotFound = errors.New("tax code not found")

// Client queries the business directory over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// BusinessInfo is the registration record behind a tax code.
type BusinessInfo struct {
	TaxCode           string `json:"tax_code"`
	Name              string `json:"name"`
	InternationalName string `json:"international_name"`
	ShortName         string `json:"short_name"`
	Address           string `json:"address"`
}

type lookupResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data *struct {
		ID                string `json:"id"`
		Name              string `json:"name"`
		InternationalName string `json:"internationalName"`
		ShortName         string `json:"shortName"`
		Address           string `json:"address"`
	} `json:"data"`
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Lookup resolves an MST to its registration record. An unknown tax
// code yields ErrNotFound; transport and decode failures are wrapped.
func (c *Client) Lookup(ctx context.Context, mst string) (BusinessInfo, error) {
	mst = strings.TrimSpace(mst)
	if mst == "" {
		return BusinessInfo{}, ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(mst), nil)
	if err != nil {
		return BusinessInfo{}, fmt.Errorf("build tax code request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return BusinessInfo{}, fmt.Errorf("tax code request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return BusinessInfo{}, fmt.Errorf("read tax code response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return BusinessInfo{}, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return BusinessInfo{}, fmt.Errorf("tax code lookup failed with status %d", resp.StatusCode)
	}

	var parsed lookupResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return BusinessInfo{}, fmt.Errorf("decode tax code response: %w", err)
	}

	if parsed.Code != lookupOKCode || parsed.Data == nil {
		return BusinessInfo{}, ErrNotFound
	}

	return BusinessInfo{
		TaxCode:           parsed.Data.ID,
		Name:              parsed.Data.Name,
		InternationalName: parsed.Data.InternationalName,
		ShortName:         parsed.Data.ShortName,
		Address:           parsed.Data.Address,
	}, nil
}
