// Package hodlersdk is a minimal Go client for the Hodler HTTP API.
package hodlersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a hodlerd instance.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Commitment mirrors the API commitment model.
type Commitment struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	EscrowAddress string `json:"escrow_address"`
	Authority     string `json:"authority"`
	Status        string `json:"status"`
	FundedAmount  uint64 `json:"funded_amount"`
	UnlockedTotal uint64 `json:"unlocked_total"`
	DeadlineUnix  int64  `json:"deadline_unix,omitempty"`
}

// Milestone mirrors the API milestone model.
type Milestone struct {
	ID              string `json:"id"`
	CommitmentID    string `json:"commitment_id"`
	Seq             int    `json:"seq"`
	Title           string `json:"title"`
	UnlockAmount    uint64 `json:"unlock_amount"`
	UnlockBps       int    `json:"unlock_bps,omitempty"`
	Status          string `json:"status"`
	CompletedAtUnix int64  `json:"completed_at_unix,omitempty"`
	ReleasedTxRef   string `json:"released_tx_ref,omitempty"`
}

// Vote mirrors one recorded vote.
type Vote struct {
	MilestoneID   string `json:"milestone_id"`
	Voter         string `json:"voter"`
	Choice        string `json:"choice"`
	Weight        uint64 `json:"weight"`
	CreatedAtUnix int64  `json:"created_at_unix"`
}

// Tally is the weighted vote summary plus the voting window bounds.
type Tally struct {
	Tally struct {
		MilestoneID   string `json:"milestone_id"`
		ApproveWeight uint64 `json:"approve_weight"`
		RejectWeight  uint64 `json:"reject_weight"`
		Voters        int    `json:"voters"`
	} `json:"tally"`
	WindowStart int64 `json:"window_start_unix,omitempty"`
	WindowEnd   int64 `json:"window_end_unix,omitempty"`
}

// FailureClaim is one voter's entitlement from a failure distribution.
type FailureClaim struct {
	DistributionID string `json:"distribution_id"`
	Voter          string `json:"voter"`
	Amount         uint64 `json:"amount"`
	Claimed        bool   `json:"claimed"`
	ClaimTxRef     string `json:"claim_tx_ref,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListCommitments returns all commitments.
func (c *Client) ListCommitments(ctx context.Context) ([]Commitment, error) {
	var resp []Commitment
	err := c.do(ctx, http.MethodGet, "commitments", nil, &resp)
	return resp, err
}

// GetCommitment fetches one commitment.
func (c *Client) GetCommitment(ctx context.Context, id string) (Commitment, error) {
	var resp Commitment
	err := c.do(ctx, http.MethodGet, "commitments/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListMilestones returns a commitment's milestones.
func (c *Client) ListMilestones(ctx context.Context, commitmentID string) ([]Milestone, error) {
	var resp []Milestone
	err := c.do(ctx, http.MethodGet, "commitments/"+url.PathEscape(commitmentID)+"/milestones", nil, &resp)
	return resp, err
}

// CompleteMilestone marks a milestone's work done with the authority's
// signature.
func (c *Client) CompleteMilestone(ctx context.Context, commitmentID, milestoneID, signature string) (Milestone, error) {
	body := map[string]any{"signature": signature}
	var resp Milestone
	endpoint := fmt.Sprintf("commitments/%s/milestones/%s/complete", url.PathEscape(commitmentID), url.PathEscape(milestoneID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Vote records a weighted vote on a milestone.
func (c *Client) Vote(ctx context.Context, milestoneID, voter, choice string, weight uint64, signature string) (Vote, error) {
	body := map[string]any{
		"voter":     voter,
		"choice":    choice,
		"weight":    weight,
		"signature": signature,
	}
	var resp Vote
	err := c.do(ctx, http.MethodPost, "milestones/"+url.PathEscape(milestoneID)+"/votes", body, &resp)
	return resp, err
}

// GetTally returns the current weighted tally for a milestone.
func (c *Client) GetTally(ctx context.Context, milestoneID string) (Tally, error) {
	var resp Tally
	err := c.do(ctx, http.MethodGet, "milestones/"+url.PathEscape(milestoneID)+"/tally", nil, &resp)
	return resp, err
}

// ClaimFailurePayout claims the caller's share of a failure distribution.
func (c *Client) ClaimFailurePayout(ctx context.Context, milestoneID, wallet string, signedAtUnix int64, signature string) (FailureClaim, error) {
	body := map[string]any{
		"wallet":         wallet,
		"signed_at_unix": signedAtUnix,
		"signature":      signature,
	}
	var resp FailureClaim
	err := c.do(ctx, http.MethodPost, "milestones/"+url.PathEscape(milestoneID)+"/claims", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &APIError{StatusCode: res.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
