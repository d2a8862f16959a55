package api

import (
	"errors"
	"io"
	"log"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"smart-locker-backend/internal/apperr"
)

// envelope is the body of every API response. Code is 0 on success and the
// HTTP status otherwise.
type envelope struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Code: 0, Message: "ok", Data: data})
}

func fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if kind == apperr.KindInternal {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, envelope{
		Code:    status,
		Message: apperr.Message(err),
		Errors:  apperr.FieldsOf(err),
	})
}

// bindJSON decodes the body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, bindError(err))
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints where the whole body may be omitted.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		fail(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = describe(fe)
		}
		return apperr.InvalidFields("invalid request", fields)
	}
	return apperr.InvalidFields("invalid request", map[string]string{"body": "must be a valid JSON object"})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "len":
		return "must be " + fe.Param() + " characters"
	case "numeric":
		return "must be numeric"
	default:
		return "is invalid"
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, apperr.InvalidFields("invalid request", map[string]string{name: "must be a positive integer"}))
		return 0, false
	}
	return id, true
}
