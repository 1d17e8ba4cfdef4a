// Package protocol defines the register read/write contract the
// acquisition scheduler and remote config handler poll through, and a
// concrete implementation that proxies register access over the cloud
// HTTP endpoints. The register-level wire codec (Modbus-style function
// code framing and CRCs) sits on the far side of that HTTP boundary and
// is out of scope here.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ecowatt/gateway/internal/errors"
	"github.com/ecowatt/gateway/internal/httpclient"
	"github.com/ecowatt/gateway/internal/logger"
)

// Adapter reads and writes inverter registers. Implementations own
// retries and timeouts; callers treat a failed read as a sample
// omission, never as a reason to abort a poll cycle.
type Adapter interface {
	ReadRegisters(ctx context.Context, start uint8, count uint16) ([]uint16, error)
	WriteRegister(ctx context.Context, addr uint8, value uint16) error
}

const maxRetries = 3

type httpAdapter struct {
	client  httpclient.Client
	baseURL string
}

// New returns an Adapter that proxies register access through baseURL +
// "/api/inverter/read" and "/api/inverter/write".
func New(client httpclient.Client, baseURL string) Adapter {
	return &httpAdapter{client: client, baseURL: baseURL}
}

type readResponse struct {
	Values []uint16 `json:"values"`
}

func (a *httpAdapter) ReadRegisters(ctx context.Context, start uint8, count uint16) ([]uint16, error) {
	errFactory := errors.New()
	url := fmt.Sprintf("%s/api/inverter/read?address=%d&count=%d", a.baseURL, start, count)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := a.client.Get(ctx, url)
		if err != nil {
			lastErr = err
			logger.Warn().Err(err).Int("attempt", attempt+1).Msg("register read attempt failed")
			continue
		}

		if !resp.IsSuccess() {
			lastErr = errFactory.WithData(errors.ErrTransportStatus, resp.Status)
			continue
		}

		var decoded readResponse
		if err := json.Unmarshal(resp.Body, &decoded); err != nil {
			return nil, errFactory.Wrap(errors.ErrProtocolMalformed, err)
		}

		return decoded.Values, nil
	}

	return nil, errFactory.Wrap(errors.ErrTransportFailed, lastErr)
}

type writeRequest struct {
	Address uint8  `json:"address"`
	Value   uint16 `json:"value"`
}

func (a *httpAdapter) WriteRegister(ctx context.Context, addr uint8, value uint16) error {
	errFactory := errors.New()
	url := a.baseURL + "/api/inverter/write"

	payload, err := json.Marshal(writeRequest{Address: addr, Value: value})
	if err != nil {
		return errFactory.Wrap(errors.ErrProtocolMalformed, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := a.client.Post(ctx, url, payload, "application/json")
		if err != nil {
			lastErr = err
			logger.Warn().Err(err).Int("attempt", attempt+1).Msg("register write attempt failed")
			continue
		}

		if !resp.IsSuccess() {
			lastErr = errFactory.WithData(errors.ErrTransportStatus, resp.Status)
			continue
		}

		return nil
	}

	return errFactory.Wrap(errors.ErrTransportFailed, lastErr)
}
