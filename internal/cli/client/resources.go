package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hpa-platform/hpactl/internal/models"
)

// Resources served by the management API
const (
	ResourceClusters     = "clusters"
	ResourceAgents       = "agents"
	ResourceCertificates = "certificates"
	ResourceTokens       = "tokens"
	ResourceSessions     = "sessions"
	ResourceUsers        = "users"
	ResourceAudit        = "audit"
)

// ListParams controls pagination and filtering of list endpoints
type ListParams struct {
	Page     int
	PageSize int
	Filters  map[string]string
}

func (p ListParams) values() url.Values {
	values := url.Values{}
	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		values.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	for key, value := range p.Filters {
		values.Set(key, value)
	}
	return values
}

// List fetches one page of a resource into out (usually a *models.PaginatedResponse)
func (c *Client) List(ctx context.Context, resource string, params ListParams, out any) error {
	return c.Get(ctx, "/"+resource, params.values(), out)
}

// GetOne fetches a single resource item
func (c *Client) GetOne(ctx context.Context, resource, id string, out any) error {
	return c.Get(ctx, fmt.Sprintf("/%s/%s", resource, url.PathEscape(id)), nil, out)
}

// Create posts a new resource item
func (c *Client) Create(ctx context.Context, resource string, data, out any) error {
	return c.Post(ctx, "/"+resource, data, out)
}

// Update replaces a resource item
func (c *Client) Update(ctx context.Context, resource, id string, data, out any) error {
	return c.Put(ctx, fmt.Sprintf("/%s/%s", resource, url.PathEscape(id)), data, out)
}

// Remove deletes a resource item
func (c *Client) Remove(ctx context.Context, resource, id string) error {
	return c.Delete(ctx, fmt.Sprintf("/%s/%s", resource, url.PathEscape(id)), nil)
}

// DashboardMetrics returns the fleet overview
func (c *Client) DashboardMetrics(ctx context.Context) (*models.DashboardMetrics, error) {
	var resp models.APIResponse[models.DashboardMetrics]
	if err := c.Get(ctx, "/dashboard/metrics", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ListClusters returns one page of clusters
func (c *Client) ListClusters(ctx context.Context, params ListParams) (*models.PaginatedResponse[models.Cluster], error) {
	var page models.PaginatedResponse[models.Cluster]
	if err := c.List(ctx, ResourceClusters, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAgents returns one page of agents
func (c *Client) ListAgents(ctx context.Context, params ListParams) (*models.PaginatedResponse[models.Agent], error) {
	var page models.PaginatedResponse[models.Agent]
	if err := c.List(ctx, ResourceAgents, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListCertificates returns one page of certificates
func (c *Client) ListCertificates(ctx context.Context, params ListParams) (*models.PaginatedResponse[models.Certificate], error) {
	var page models.PaginatedResponse[models.Certificate]
	if err := c.List(ctx, ResourceCertificates, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RevokeCertificate revokes a certificate
func (c *Client) RevokeCertificate(ctx context.Context, id string) error {
	return c.Post(ctx, fmt.Sprintf("/certificates/%s/revoke", url.PathEscape(id)), nil, nil)
}

// DownloadCertificate fetches the PEM bundle of a certificate, writing it to
// filename when one is given
func (c *Client) DownloadCertificate(ctx context.Context, id, filename string) ([]byte, error) {
	return c.Download(ctx, fmt.Sprintf("/certificates/%s/download", url.PathEscape(id)), filename)
}

// ListTokens returns one page of tokens
func (c *Client) ListTokens(ctx context.Context, params ListParams) (*models.PaginatedResponse[models.Token], error) {
	var page models.PaginatedResponse[models.Token]
	if err := c.List(ctx, ResourceTokens, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RevokeToken revokes a token
func (c *Client) RevokeToken(ctx context.Context, id string) error {
	return c.Post(ctx, fmt.Sprintf("/tokens/%s/revoke", url.PathEscape(id)), nil, nil)
}

// RotateToken issues a replacement for a token
func (c *Client) RotateToken(ctx context.Context, id string) (*models.Token, error) {
	var resp models.APIResponse[models.Token]
	if err := c.Post(ctx, fmt.Sprintf("/tokens/%s/rotate", url.PathEscape(id)), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ListSessions returns one page of agent sessions
func (c *Client) ListSessions(ctx context.Context, params ListParams) (*models.PaginatedResponse[models.Session], error) {
	var page models.PaginatedResponse[models.Session]
	if err := c.List(ctx, ResourceSessions, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TerminateSession closes an agent session
func (c *Client) TerminateSession(ctx context.Context, id string) error {
	return c.Post(ctx, fmt.Sprintf("/sessions/%s/terminate", url.PathEscape(id)), nil, nil)
}

// ListUsers returns one page of console users
func (c *Client) ListUsers(ctx context.Context, params ListParams) (*models.PaginatedResponse[models.User], error) {
	var page models.PaginatedResponse[models.User]
	if err := c.List(ctx, ResourceUsers, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAuditLogs returns one page of audit entries
func (c *Client) ListAuditLogs(ctx context.Context, params ListParams) (*models.PaginatedResponse[models.AuditLog], error) {
	var page models.PaginatedResponse[models.AuditLog]
	if err := c.List(ctx, ResourceAudit, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
