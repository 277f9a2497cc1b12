// Package records talks to the complaint CRUD service. The board engine
// only uses it to seed projections and to persist authoritative status
// changes; everything else about that service stays outside this module.
package records

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
)

// Query filters a complaint listing.
type Query struct {
	Status   domain.Status
	Category string
	Page     int
	PageSize int
}

// Pagination echoes the listing window the service actually returned.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// Client is a thin JSON client for the complaint service.
type Client struct {
	baseURL string
	bearer  string
	http    *http.Client
}

// New creates a records client. bearer may be empty when the service runs
// in an unauthenticated test mode.
func New(baseURL, bearer string) *Client {
	return &Client{
		baseURL: baseURL,
		bearer:  bearer,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type listResponse struct {
	Records    []domain.Complaint `json:"records"`
	Pagination Pagination         `json:"pagination"`
}

type updateStatusRequest struct {
	NewStatus domain.Status `json:"newStatus"`
	Reason    string        `json:"reason,omitempty"`
}

// ListComplaints fetches complaints matching the query.
func (c *Client) ListComplaints(ctx context.Context, q Query) ([]domain.Complaint, Pagination, error) {
	vals := url.Values{}
	if q.Status != "" {
		vals.Set("status", string(q.Status))
	}
	if q.Category != "" {
		vals.Set("category", q.Category)
	}
	if q.Page > 0 {
		vals.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		vals.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	u := c.baseURL + "/api/complaints"
	if enc := vals.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, Pagination{}, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Pagination{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Pagination{}, fmt.Errorf("list complaints: status %d: %s", resp.StatusCode, body)
	}

	var out listResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, Pagination{}, err
	}
	return out.Records, out.Pagination, nil
}

// UpdateStatus persists the authoritative status change behind a board
// move. The realtime layer broadcasts the converged placement afterwards.
func (c *Client) UpdateStatus(ctx context.Context, id string, newStatus domain.Status, reason string) error {
	payload, err := sonic.Marshal(updateStatusRequest{NewStatus: newStatus, Reason: reason})
	if err != nil {
		return err
	}
	u := c.baseURL + "/api/complaints/" + url.PathEscape(id) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("update status of %s: status %d: %s", id, resp.StatusCode, body)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
}
