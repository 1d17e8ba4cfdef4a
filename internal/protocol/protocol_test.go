package protocol

import (
	"context"
	"testing"

	"github.com/ecowatt/gateway/internal/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	getResponses []getCall
	postStatus   int
	postErr      error
	headers      map[string]string
}

type getCall struct {
	resp *httpclient.Response
	err  error
}

func (f *fakeClient) Get(ctx context.Context, url string) (*httpclient.Response, error) {
	call := f.getResponses[0]
	f.getResponses = f.getResponses[1:]
	return call.resp, call.err
}

func (f *fakeClient) Post(ctx context.Context, url string, body []byte, contentType string) (*httpclient.Response, error) {
	if f.postErr != nil {
		return nil, f.postErr
	}
	return &httpclient.Response{Status: f.postStatus}, nil
}

func (f *fakeClient) SetDefaultHeaders(headers map[string]string) {
	f.headers = headers
}

func TestReadRegisters_SucceedsOnFirstTry(t *testing.T) {
	client := &fakeClient{getResponses: []getCall{
		{resp: &httpclient.Response{Status: 200, Body: []byte(`{"values":[2303,100]}`)}},
	}}

	adapter := New(client, "http://cloud")
	values, err := adapter.ReadRegisters(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{2303, 100}, values)
}

func TestReadRegisters_RetriesOnFailureThenSucceeds(t *testing.T) {
	client := &fakeClient{getResponses: []getCall{
		{resp: &httpclient.Response{Status: 500}},
		{resp: &httpclient.Response{Status: 200, Body: []byte(`{"values":[1]}`)}},
	}}

	adapter := New(client, "http://cloud")
	values, err := adapter.ReadRegisters(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1}, values)
}

func TestReadRegisters_ExhaustsRetries(t *testing.T) {
	client := &fakeClient{getResponses: []getCall{
		{resp: &httpclient.Response{Status: 500}},
		{resp: &httpclient.Response{Status: 500}},
		{resp: &httpclient.Response{Status: 500}},
	}}

	adapter := New(client, "http://cloud")
	_, err := adapter.ReadRegisters(context.Background(), 0, 1)
	assert.Error(t, err)
}

func TestWriteRegister_Succeeds(t *testing.T) {
	client := &fakeClient{postStatus: 204}
	adapter := New(client, "http://cloud")
	err := adapter.WriteRegister(context.Background(), 1, 42)
	assert.NoError(t, err)
}
