package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/core/service"
)

// retryAfter is advertised on lock timeouts.
const retryAfter = time.Second

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error  string       `json:"error"`
	Kind   string       `json:"kind"`
	Fields []fieldError `json:"fields,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError hides storage details from clients; they are logged by the service.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Kind: service.ErrorReason(err)}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = []fieldError{{Field: ve.Field, Message: ve.Message}}
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

// writeBindError reports malformed bodies and binding tag failures.
func writeBindError(c *gin.Context, err error) {
	resp := errorResponse{Error: "invalid request body", Kind: "validation"}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, fieldError{Field: fe.Namespace(), Message: "failed " + fe.Tag()})
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}
