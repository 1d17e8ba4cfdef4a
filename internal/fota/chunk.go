package fota

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ecowatt/gateway/internal/errors"
	"github.com/ecowatt/gateway/internal/httpclient"
)

// fetchChunk pulls one chunk, verifies its chunk number and HMAC-SHA256
// tag against key, and returns the decoded payload.
func fetchChunk(ctx context.Context, client httpclient.Client, baseURL string, n uint32, key []byte) ([]byte, error) {
	errFactory := errors.New()

	url := fmt.Sprintf("%s/api/inverter/fota/chunk?chunk_number=%d", baseURL, n)
	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrTransportFailed, err)
	}
	if !resp.IsSuccess() {
		return nil, errFactory.WithData(errors.ErrTransportStatus, resp.Status)
	}

	var doc chunkResponse
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, errFactory.Wrap(errors.ErrProtocolMalformed, err)
	}

	if doc.ChunkNumber != n {
		return nil, errFactory.WithData(ErrChunkMismatch, doc.ChunkNumber)
	}

	data, err := base64.StdEncoding.DecodeString(doc.Data)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrProtocolMalformed, err)
	}

	if err := verifyChunkMAC(data, doc.MAC, key); err != nil {
		return nil, err
	}

	return data, nil
}

func verifyChunkMAC(data []byte, macHex string, key []byte) error {
	errFactory := errors.New()

	want, err := hex.DecodeString(macHex)
	if err != nil {
		return errFactory.Wrap(ErrChunkHMACFailed, err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	got := mac.Sum(nil)

	if !hmac.Equal(got, want) {
		return errFactory.New(ErrChunkHMACFailed)
	}

	return nil
}

// writeChunkAt writes a chunk's bytes into the scratch image at its
// chunk-indexed offset, tolerating out-of-order delivery: the file is
// opened for random-access writes rather than strict append so a later
// chunk never has to wait for an earlier one.
func writeChunkAt(path string, chunkIndex, chunkSize uint32, data []byte) error {
	errFactory := errors.New()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	defer f.Close()

	offset := int64(chunkIndex) * int64(chunkSize)
	n, err := f.WriteAt(data, offset)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	if n != len(data) {
		return errFactory.New(ErrShortWrite)
	}

	return nil
}

func truncateScratch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.New().Wrap(errors.ErrInitFailed, err)
	}
	return f.Close()
}
