package remoteconfig

import "github.com/ecowatt/gateway/internal/errors"

const (
	ErrOutOfBounds    = errors.ErrorCode("config_out_of_bounds")
	ErrUnknownParam   = errors.ErrorCode("config_unknown_register")
	ErrEmptyAfterScan = errors.ErrorCode("config_empty_after_filter")
)

func init() {
	errors.RegisterCategory(ErrOutOfBounds, errors.CategoryValidation)
	errors.RegisterCategory(ErrUnknownParam, errors.CategoryValidation)
	errors.RegisterCategory(ErrEmptyAfterScan, errors.CategoryValidation)
}
