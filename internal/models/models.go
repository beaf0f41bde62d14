package models

import "time"

// Role is the closed set of console roles
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// AuthUser is the authenticated principal as returned by the backend
type AuthUser struct {
	ID        string  `json:"id" yaml:"id"`
	Email     string  `json:"email" yaml:"email"`
	FirstName string  `json:"firstName,omitempty" yaml:"first_name,omitempty"`
	LastName  string  `json:"lastName,omitempty" yaml:"last_name,omitempty"`
	Role      Role    `json:"role,omitempty" yaml:"role,omitempty"`
	Avatar    *string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Verified  bool    `json:"verified" yaml:"verified"`
	CreatedAt string  `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
	LastLogin *string `json:"lastLogin,omitempty" yaml:"last_login,omitempty"`
	TenantID  string  `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
}

// DisplayName returns "First Last", falling back to the email
func (u *AuthUser) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// APIResponse is the envelope some endpoints wrap their payload in
type APIResponse[T any] struct {
	Data    T        `json:"data"`
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// PaginatedResponse is returned by every list endpoint
type PaginatedResponse[T any] struct {
	Data       []T `json:"data" yaml:"data"`
	Total      int `json:"total" yaml:"total"`
	Page       int `json:"page" yaml:"page"`
	PageSize   int `json:"pageSize" yaml:"page_size"`
	TotalPages int `json:"totalPages" yaml:"total_pages"`
}

// ClusterMetrics summarizes the load of a cluster
type ClusterMetrics struct {
	CPUUsage    float64 `json:"cpuUsage"`
	MemoryUsage float64 `json:"memoryUsage"`
	PodCount    int     `json:"podCount"`
	NodeCount   int     `json:"nodeCount"`
	HPACount    int     `json:"hpaCount"`
}

// Cluster is a managed Kubernetes cluster
type Cluster struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"` // active, inactive, error, pending
	Version   string          `json:"version"`
	NodeCount int             `json:"nodeCount"`
	Region    string          `json:"region"`
	CreatedAt time.Time       `json:"createdAt"`
	LastSeen  *time.Time      `json:"lastSeen,omitempty"`
	Metrics   *ClusterMetrics `json:"metrics,omitempty"`
}

// Agent is an in-cluster agent connected to the platform
type Agent struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ClusterID     string     `json:"clusterId"`
	ClusterName   string     `json:"clusterName,omitempty"`
	Status        string     `json:"status"` // connected, disconnected, error, connecting
	Version       string     `json:"version"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
	IPAddress     string     `json:"ipAddress,omitempty"`
	Port          int        `json:"port,omitempty"`
	TLSEnabled    bool       `json:"tlsEnabled"`
}

// Certificate is an issued client, server or CA certificate
type Certificate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`   // client, server, ca
	Status       string    `json:"status"` // active, expired, revoked, pending
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	ValidFrom    time.Time `json:"validFrom"`
	ValidTo      time.Time `json:"validTo"`
	SerialNumber string    `json:"serialNumber"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Token is an agent or cluster access token
type Token struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	AgentID    string     `json:"agentId,omitempty"`
	ClusterID  string     `json:"clusterId,omitempty"`
	Scope      []string   `json:"scope"`
	Status     string     `json:"status"` // active, expired, revoked
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
	UsageCount int        `json:"usageCount"`
}

// Session is an agent tunnel session
type Session struct {
	ID               string     `json:"id"`
	AgentID          string     `json:"agentId"`
	AgentName        string     `json:"agentName"`
	ClusterID        string     `json:"clusterId"`
	ClusterName      string     `json:"clusterName"`
	Status           string     `json:"status"` // active, inactive, error
	ConnectedAt      time.Time  `json:"connectedAt"`
	LastActivity     *time.Time `json:"lastActivity,omitempty"`
	BytesTransferred int64      `json:"bytesTransferred"`
	RequestCount     int64      `json:"requestCount"`
	Errors           int64      `json:"errors"`
}

// User is a console user as managed by admins
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	Status    string     `json:"status"` // active, inactive, suspended
}

// AuditLog is a single audit trail entry
type AuditLog struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	UserID     string         `json:"userId"`
	UserEmail  string         `json:"userEmail"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resourceId"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ipAddress"`
	UserAgent  string         `json:"userAgent"`
	Severity   string         `json:"severity"` // low, medium, high, critical
}

// DashboardMetrics is the fleet overview shown on the dashboard
type DashboardMetrics struct {
	TotalClusters     int    `json:"totalClusters"`
	ActiveClusters    int    `json:"activeClusters"`
	TotalAgents       int    `json:"totalAgents"`
	ConnectedAgents   int    `json:"connectedAgents"`
	TotalCertificates int    `json:"totalCertificates"`
	ExpiringSoon      int    `json:"expiringSoon"`
	ActiveTokens      int    `json:"activeTokens"`
	RecentAudits      int    `json:"recentAudits"`
	SystemHealth      string `json:"systemHealth"` // healthy, warning, critical
}
