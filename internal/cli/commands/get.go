package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hpa-platform/hpactl/internal/cli/client"
	"github.com/hpa-platform/hpactl/internal/models"
)

const resourceDashboard = "dashboard"

var resourceNames = []string{
	resourceDashboard,
	client.ResourceClusters,
	client.ResourceAgents,
	client.ResourceCertificates,
	client.ResourceTokens,
	client.ResourceSessions,
	client.ResourceUsers,
	client.ResourceAudit,
}

// NewGetCmd creates the get command
func NewGetCmd(app *App) *cobra.Command {
	var params client.ListParams
	var output string

	cmd := &cobra.Command{
		Use:       "get [resource]",
		Short:     "List fleet resources",
		Long:      "List fleet resources: " + strings.Join(resourceNames, ", ") + ".",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: resourceNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resource string
			if len(args) > 0 {
				resource = args[0]
			}
			return runGet(cmd.Context(), app, resource, params, output)
		},
	}

	cmd.Flags().IntVar(&params.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&params.PageSize, "page-size", 20, "Items per page")
	cmd.Flags().StringToStringVar(&params.Filters, "filter", nil, "Filter as key=value (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", FormatTable, "Output format (table, json, yaml)")

	return cmd
}

func runGet(ctx context.Context, app *App, resource string, params client.ListParams, output string) error {
	if err := validFormat(output); err != nil {
		return err
	}

	if resource == "" {
		choice, err := app.selectOption("Select a resource", resourceNames)
		if err != nil {
			return err
		}
		resource = choice
	}
	if !knownResource(resource) {
		return fmt.Errorf("unknown resource %q (expected one of: %s)", resource, strings.Join(resourceNames, ", "))
	}

	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := requireAuth(ctx, sess); err != nil {
		return err
	}

	api := sess.API
	switch resource {
	case resourceDashboard:
		metrics, err := api.DashboardMetrics(ctx)
		if err != nil {
			return fmt.Errorf("failed to load dashboard: %w", err)
		}
		return renderDashboard(app, output, metrics)

	case client.ResourceClusters:
		page, err := api.ListClusters(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list clusters: %w", err)
		}
		return renderPage(app, output, page, []string{"ID", "NAME", "STATUS", "VERSION", "NODES", "REGION", "LAST SEEN"},
			func(c models.Cluster) []string {
				return []string{c.ID, c.Name, c.Status, c.Version, strconv.Itoa(c.NodeCount), c.Region, formatTimePtr(c.LastSeen)}
			})

	case client.ResourceAgents:
		page, err := api.ListAgents(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list agents: %w", err)
		}
		return renderPage(app, output, page, []string{"ID", "NAME", "CLUSTER", "STATUS", "VERSION", "LAST HEARTBEAT"},
			func(a models.Agent) []string {
				cluster := a.ClusterName
				if cluster == "" {
					cluster = a.ClusterID
				}
				return []string{a.ID, a.Name, cluster, a.Status, a.Version, formatTimePtr(a.LastHeartbeat)}
			})

	case client.ResourceCertificates:
		page, err := api.ListCertificates(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list certificates: %w", err)
		}
		return renderPage(app, output, page, []string{"ID", "NAME", "TYPE", "STATUS", "SUBJECT", "VALID TO"},
			func(c models.Certificate) []string {
				return []string{c.ID, c.Name, c.Type, c.Status, c.Subject, formatTime(c.ValidTo)}
			})

	case client.ResourceTokens:
		page, err := api.ListTokens(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list tokens: %w", err)
		}
		return renderPage(app, output, page, []string{"ID", "NAME", "STATUS", "SCOPE", "EXPIRES", "USES"},
			func(t models.Token) []string {
				return []string{t.ID, t.Name, t.Status, strings.Join(t.Scope, ","), formatTimePtr(t.ExpiresAt), strconv.Itoa(t.UsageCount)}
			})

	case client.ResourceSessions:
		page, err := api.ListSessions(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		return renderPage(app, output, page, []string{"ID", "AGENT", "CLUSTER", "STATUS", "CONNECTED", "REQUESTS"},
			func(s models.Session) []string {
				return []string{s.ID, s.AgentName, s.ClusterName, s.Status, formatTime(s.ConnectedAt), strconv.FormatInt(s.RequestCount, 10)}
			})

	case client.ResourceUsers:
		page, err := api.ListUsers(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		return renderPage(app, output, page, []string{"ID", "USERNAME", "EMAIL", "ROLE", "STATUS", "LAST LOGIN"},
			func(u models.User) []string {
				return []string{u.ID, u.Username, u.Email, string(u.Role), u.Status, formatTimePtr(u.LastLogin)}
			})

	default: // audit
		page, err := api.ListAuditLogs(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list audit logs: %w", err)
		}
		return renderPage(app, output, page, []string{"TIME", "USER", "ACTION", "RESOURCE", "SEVERITY"},
			func(l models.AuditLog) []string {
				return []string{formatTime(l.Timestamp), l.UserEmail, l.Action, l.Resource + "/" + l.ResourceID, l.Severity}
			})
	}
}

func knownResource(resource string) bool {
	for _, name := range resourceNames {
		if name == resource {
			return true
		}
	}
	return false
}

// renderPage prints one page of a list response
func renderPage[T any](app *App, output string, page *models.PaginatedResponse[T], header []string, row func(T) []string) error {
	if output != FormatTable {
		return writeStructured(app.out, output, page)
	}

	if len(page.Data) == 0 {
		app.println("No items found.")
		return nil
	}

	rows := make([][]string, 0, len(page.Data))
	for _, item := range page.Data {
		rows = append(rows, row(item))
	}
	if err := writeTable(app.out, header, rows); err != nil {
		return err
	}

	app.printf("\nPage %d of %d (%d total)\n", page.Page, page.TotalPages, page.Total)
	return nil
}

func renderDashboard(app *App, output string, m *models.DashboardMetrics) error {
	if output != FormatTable {
		return writeStructured(app.out, output, m)
	}

	return writeTable(app.out, []string{"METRIC", "VALUE"}, [][]string{
		{"System health", m.SystemHealth},
		{"Clusters", fmt.Sprintf("%d (%d active)", m.TotalClusters, m.ActiveClusters)},
		{"Agents", fmt.Sprintf("%d (%d connected)", m.TotalAgents, m.ConnectedAgents)},
		{"Certificates", fmt.Sprintf("%d (%d expiring soon)", m.TotalCertificates, m.ExpiringSoon)},
		{"Active tokens", strconv.Itoa(m.ActiveTokens)},
		{"Recent audit events", strconv.Itoa(m.RecentAudits)},
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
