package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"fulfillment/internal/apierror"
	"fulfillment/internal/dto"
	"fulfillment/internal/middleware"
	"fulfillment/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// IdempotencyHeader carries the caller's request key. Replaying a create with
// the same key returns the document created the first time; replaying a
// line-item add returns the order without adding rows again.
const IdempotencyHeader = "Idempotency-Key"

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// gte=0 work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Report fields by their json (or form) name so keys read
	// line_items[0].price_per_unit rather than LineItems[0].PricePerUnit.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
}

// fieldKey drops the root struct name from a validator namespace.
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "uuid":
		return "must be a valid UUID"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s entry", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "datetime":
		return "must be a date formatted " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}

func validationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldKey(fe)] = fieldMessage(fe)
	}
	return fields
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeValidation, "invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewValidation(validationFields(err)))
		return false
	}
	return true
}

// bindQuery is bindAndValidate for query-string filters.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeValidation, "invalid query: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewValidation(validationFields(err)))
		return false
	}
	return true
}

// parseID reads a uuid path parameter, answering 400 when malformed.
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeValidation, "invalid "+param))
		return uuid.Nil, false
	}
	return id, true
}

// actorFrom builds the audit identity from the validated JWT claims.
func actorFrom(c *gin.Context) service.Actor {
	claims := middleware.GetClaims(c)
	if claims == nil {
		return service.Actor{}
	}
	return service.Actor{ID: claims.UserID, Name: claims.Username, IsAdmin: claims.IsAdmin()}
}

func requestKeys(c *gin.Context) *service.RequestKeys {
	return service.NewRequestKeys(strings.TrimSpace(c.GetHeader(IdempotencyHeader)))
}

// respondError maps service errors onto status codes and the apierror
// envelope. Anything unrecognised is handed to the ErrorHandler middleware,
// which logs it and answers 500.
func respondError(c *gin.Context, err error) {
	var (
		unfulfilled *service.UnfulfilledLineItemsError
		dupSerial   *service.DuplicateSerialError
		fields      service.FieldErrors
	)
	switch {
	case errors.As(err, &unfulfilled):
		c.JSON(http.StatusConflict, apierror.NewUnfulfilled(err.Error(), unfulfilled.LineItems))
	case errors.As(err, &dupSerial):
		resp := apierror.New(apierror.CodeDuplicateSerial, err.Error())
		resp.Fields = dupSerial.Fields
		c.JSON(http.StatusBadRequest, resp)
	case errors.As(err, &fields):
		resp := apierror.NewValidation(fields)
		resp.Detail = err.Error()
		c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, apierror.New(apierror.CodeNotFound, err.Error()))
	case errors.Is(err, service.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeInvalidQuantity, err.Error()))
	case errors.Is(err, service.ErrInsufficientRemaining):
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeInsufficientRemaining, err.Error()))
	case errors.Is(err, service.ErrOverrideReasonRequired):
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeOverrideReasonRequired, err.Error()))
	case errors.Is(err, service.ErrInvalidReference):
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeInvalidReference, err.Error()))
	case errors.Is(err, service.ErrForbiddenOverride):
		c.JSON(http.StatusForbidden, apierror.New(apierror.CodeForbidden, err.Error()))
	case errors.Is(err, service.ErrNoCapacity):
		c.JSON(http.StatusConflict, apierror.New(apierror.CodeNoCapacity, err.Error()))
	case errors.Is(err, service.ErrDocumentClosed):
		c.JSON(http.StatusConflict, apierror.New(apierror.CodeDocumentClosed, err.Error()))
	case errors.Is(err, service.ErrHasDependents):
		c.JSON(http.StatusConflict, apierror.New(apierror.CodeHasDependents, err.Error()))
	case errors.Is(err, service.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, apierror.New(apierror.CodeDuplicateRequest, err.Error()))
	default:
		log.Debug().Err(err).Str("path", c.FullPath()).Msg("unmapped service error")
		_ = c.Error(err)
	}
}

// bindCloseRequest accepts an empty body as a plain close.
func bindCloseRequest(c *gin.Context, req *dto.CloseRequest) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindAndValidate(c, req)
}
