package testbackend

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hpa-platform/hpactl/internal/models"
)

const defaultPageSize = 20

// listHandler serves one paginated fixture collection
func listHandler[T any](b *Backend, pick func(Fixtures) []T) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := queryInt(c, "page", 1)
		pageSize := queryInt(c, "pageSize", defaultPageSize)

		b.mu.Lock()
		items := pick(b.fixtures)
		b.mu.Unlock()

		c.JSON(http.StatusOK, paginate(items, page, pageSize))
	}
}

func paginate[T any](items []T, page, pageSize int) models.PaginatedResponse[T] {
	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	data := make([]T, end-start)
	copy(data, items[start:end])

	return models.PaginatedResponse[T]{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func (b *Backend) dashboardMetrics(c *gin.Context) {
	b.mu.Lock()
	metrics := b.fixtures.Metrics
	b.mu.Unlock()

	c.JSON(http.StatusOK, models.APIResponse[models.DashboardMetrics]{Data: metrics, Success: true})
}

func (b *Backend) downloadCertificate(c *gin.Context) {
	id := c.Param("id")

	b.mu.Lock()
	pem, ok := b.certPEM[id]
	b.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Certificate not found", "code": "NOT_FOUND"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".pem"))
	c.Data(http.StatusOK, "application/x-pem-file", pem)
}

func (b *Backend) revokeCertificate(c *gin.Context) {
	id := c.Param("id")

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.fixtures.Certificates {
		if b.fixtures.Certificates[i].ID == id {
			b.fixtures.Certificates[i].Status = "revoked"
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "Certificate not found", "code": "NOT_FOUND"})
}
