package fota

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/ecowatt/gateway/internal/errors"
	"github.com/ecowatt/gateway/internal/httpclient"
)

// fetchManifest pulls the published manifest. An absent or unparseable
// manifest, or one missing its version, size or hash, is "no update",
// not an error; a hash that is not a hex-encoded SHA-256 digest is an
// ErrManifestInvalid error.
func fetchManifest(ctx context.Context, client httpclient.Client, baseURL string) (Manifest, error) {
	errFactory := errors.New()

	resp, err := client.Get(ctx, baseURL+"/api/inverter/fota/manifest")
	if err != nil {
		return Manifest{}, errFactory.Wrap(errors.ErrTransportFailed, err)
	}
	if !resp.IsSuccess() {
		return Manifest{}, errFactory.WithData(errors.ErrTransportStatus, resp.Status)
	}

	var doc manifestResponse
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return Manifest{Valid: false}, nil
	}

	m := doc.FOTA.Manifest
	m.Valid = m.Version != "" && m.Size > 0 && m.Hash != ""
	if !m.Valid {
		return m, nil
	}

	if raw, err := hex.DecodeString(m.Hash); err != nil || len(raw) != sha256Size {
		return Manifest{}, errFactory.WithData(ErrManifestInvalid, m.Hash)
	}

	chunkSize := m.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}
	m.ChunkSize = chunkSize
	m.TotalChunks = (m.Size + chunkSize - 1) / chunkSize

	return m, nil
}
