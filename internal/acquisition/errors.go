package acquisition

import "github.com/ecowatt/gateway/internal/errors"

const (
	ErrNoSamples  = errors.ErrorCode("acquisition_no_samples")
	ErrReadFailed = errors.ErrorCode("acquisition_read_failed")
)

func init() {
	errors.RegisterCategory(ErrNoSamples, errors.CategoryTransport)
	errors.RegisterCategory(ErrReadFailed, errors.CategoryTransport)
}
