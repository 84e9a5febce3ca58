package phd2

/*
MIT License

Copyright (c) 2024-2026 the obslink authors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/obsworks/obslink"
)

//rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

//rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

//rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

/*demux distinguishes responses from server-initiated events on the wire: a
response carries a numeric "id", an event carries an "Event" name and no id.
Implements obslink.Demux.*/
type demux struct{}

func (demux) Correlate(line string) (uint64, bool) {
	var probe struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(line), &probe); err != nil || probe.ID == nil {
		return 0, false
	}
	return *probe.ID, true
}

/*decodeResult decodes a raw response line into the passed result pointer.
An error member in the response becomes an invalid-response error carrying
the server's message; out may be nil when the caller only cares about
success.*/
func decodeResult(line string, out interface{}) error {
	var rsp rpcResponse
	if err := json.Unmarshal([]byte(line), &rsp); err != nil {
		return obslink.NewError(obslink.KindParse, errors.Wrap(err, "rpc response"))
	}
	if rsp.Error != nil {
		return obslink.NewError(obslink.KindInvalidResponse,
			errors.Errorf("rpc error %d: %s", rsp.Error.Code, rsp.Error.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rsp.Result, out); err != nil {
		return obslink.NewError(obslink.KindParse, errors.Wrap(err, "rpc result"))
	}
	return nil
}
