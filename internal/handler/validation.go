package handler

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/loan-servicing/pkg/errors"
	"github.com/segyhp/loan-servicing/pkg/response"
)

// NewValidator returns a validator that understands decimal.Decimal fields:
// they validate as their string form and support decimal_gt / decimal_gte.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("decimal_gt", decimalCompare(func(d, limit decimal.Decimal) bool { return d.GreaterThan(limit) }))
	_ = v.RegisterValidation("decimal_gte", decimalCompare(func(d, limit decimal.Decimal) bool { return d.GreaterThanOrEqual(limit) }))
	return v
}

func decimalCompare(cmp func(d, limit decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		limit, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return cmp(d, limit)
	}
}

// writeError maps business errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error, prefix string) {
	var be *customError.BusinessError
	if !errors.As(err, &be) {
		response.InternalServerError(w, prefix+"internal error", err)
		return
	}

	status := http.StatusInternalServerError
	switch be.Code {
	case customError.ErrCodeInvalidLoanTerms,
		customError.ErrCodeInvalidSchedulerConfig,
		customError.ErrCodeMalformedRecord:
		status = http.StatusBadRequest
	case customError.ErrCodeApplicationNotFound,
		customError.ErrCodeLoanNotFound:
		status = http.StatusNotFound
	case customError.ErrCodeLoanAlreadyExists,
		customError.ErrCodeApplicationNotApprovable:
		status = http.StatusConflict
	case customError.ErrCodeCycleFetchFailed:
		status = http.StatusServiceUnavailable
	}

	message := prefix + be.Message
	if status == http.StatusInternalServerError {
		message = prefix + "internal error"
	}
	response.ErrorCode(w, status, be.Code, message)
}
