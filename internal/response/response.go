package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Envelope is the JSON shape of every API response: exactly one of Data or
// Error is meaningful, Metadata always rides along for tracing.
type Envelope struct {
	Data       interface{}  `json:"data"`
	Error      *ErrorDetail `json:"error,omitempty"`
	Pagination *Pagination  `json:"pagination,omitempty"`
	Metadata   Metadata     `json:"metadata"`
}

// ErrorDetail is the error half of the envelope. Fields carries per-field
// validation messages when present.
type ErrorDetail struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives the page descriptor from a total row count.
func NewPagination(page, perPage, totalItems int) *Pagination {
	totalPages := 0
	if perPage > 0 {
		totalPages = (totalItems + perPage - 1) / perPage
	}
	return &Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

// Metadata carries the request id and the server-side timestamp.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Success sends data with the given status code.
func Success(c *gin.Context, statusCode int, data interface{}) {
	write(c, statusCode, Envelope{Data: data}, false)
}

// SuccessWithPagination sends one page of a list.
func SuccessWithPagination(c *gin.Context, statusCode int, data interface{}, pagination *Pagination) {
	write(c, statusCode, Envelope{Data: data, Pagination: pagination}, false)
}

// Fail sends an error code with its canonical message.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	write(c, statusCode, Envelope{
		Error: &ErrorDetail{Code: code, Message: GetMessage(code)},
	}, false)
}

// FailWithFields sends a validation failure with per-field messages.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	write(c, statusCode, Envelope{
		Error: &ErrorDetail{Code: code, Message: GetMessage(code), Fields: fields},
	}, false)
}

// AbortFail is Fail for middleware: it also stops the handler chain.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	write(c, statusCode, Envelope{
		Error: &ErrorDetail{Code: code, Message: GetMessage(code)},
	}, true)
}

func write(c *gin.Context, statusCode int, env Envelope, abort bool) {
	env.Metadata = buildMetadata(c)
	if abort {
		c.AbortWithStatusJSON(statusCode, env)
		return
	}
	c.JSON(statusCode, env)
}

func buildMetadata(c *gin.Context) Metadata {
	id := c.GetString(ContextKeyRequestID)
	if id == "" {
		// Route registered without the request-id middleware.
		id = uuid.New().String()
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
