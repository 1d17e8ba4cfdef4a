package diagnostics

import "github.com/ecowatt/gateway/internal/errors"

const (
	ErrInvalidDBPath = errors.ErrorCode("diagnostics_invalid_db_path")
	ErrStorageInit   = errors.ErrorCode("diagnostics_storage_init_failed")
	ErrStorageAccess = errors.ErrorCode("diagnostics_storage_access_failed")
	ErrStorageClose  = errors.ErrorCode("diagnostics_storage_close_failed")
	ErrSchemaInit    = errors.ErrorCode("diagnostics_schema_init_failed")
)

func init() {
	errors.RegisterCategory(ErrInvalidDBPath, errors.CategoryValidation)
	errors.RegisterCategory(ErrStorageInit, errors.CategoryResource)
	errors.RegisterCategory(ErrStorageAccess, errors.CategoryResource)
	errors.RegisterCategory(ErrStorageClose, errors.CategoryResource)
	errors.RegisterCategory(ErrSchemaInit, errors.CategoryResource)
}
