package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/afetnet/mesh-registry-api/internal/models"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
)

// Envelope is the wire shape shared by every endpoint: either data (with
// optional pagination and meta) or a single error object.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON writes a success envelope with the given status.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	env := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		env.Meta = meta[0]
	}
	c.JSON(status, env)
}

// Created writes a 201 envelope.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// NoContent writes an empty 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error normalises err and writes its public form. All 401s leave here as
// the same generic body regardless of which credential check failed.
func Error(c *gin.Context, err error) {
	appErr := appErrors.Public(appErrors.FromError(err))
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}
