package fota

import "github.com/ecowatt/gateway/internal/errors"

const (
	ErrManifestInvalid  = errors.ErrorCode("fota_manifest_invalid")
	ErrChunkMismatch    = errors.ErrorCode("fota_chunk_number_mismatch")
	ErrChunkHMACFailed  = errors.ErrorCode("fota_chunk_hmac_failed")
	ErrHashMismatch     = errors.ErrorCode("fota_hash_mismatch")
	ErrSizeMismatch     = errors.ErrorCode("fota_size_mismatch")
	ErrShortWrite       = errors.ErrorCode("fota_short_write")
	ErrInvalidState     = errors.ErrorCode("fota_invalid_state")
	ErrStatePersistence = errors.ErrorCode("fota_state_persistence_failed")
)

func init() {
	errors.RegisterCategory(ErrManifestInvalid, errors.CategoryProtocol)
	errors.RegisterCategory(ErrChunkMismatch, errors.CategoryProtocol)
	errors.RegisterCategory(ErrChunkHMACFailed, errors.CategoryIntegrity)
	errors.RegisterCategory(ErrHashMismatch, errors.CategoryIntegrity)
	errors.RegisterCategory(ErrSizeMismatch, errors.CategoryIntegrity)
	errors.RegisterCategory(ErrShortWrite, errors.CategoryResource)
	errors.RegisterCategory(ErrInvalidState, errors.CategoryState)
	errors.RegisterCategory(ErrStatePersistence, errors.CategoryResource)
}
