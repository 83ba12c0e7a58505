package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

// RequestContext is the context every request carries, per spec.md
// §6: region_id, region_epoch{version, conf_version}, isolation_level,
// and resolved_locks for a client that has already resolved some
// locks it previously hit and wants this request to treat them as
// cleared.
type RequestContext struct {
	RegionID         uint64
	EpochVersion     uint64
	EpochConfVersion uint64
	IsolationLevel   string
	ResolvedLocks    [][]byte
}

// ErrorEnvelope is the wire form of spec.md §6's error envelope.
// Success is Code == dingoerr.OK with TxnResult empty of conflict
// variants.
type ErrorEnvelope struct {
	Code            dingoerr.Code
	Message         string
	LeaderLocation  string
	StoreRegionInfo []byte
	TxnResult       *dingoerr.TxnResult
}

func envelopeOK() *ErrorEnvelope {
	return &ErrorEnvelope{Code: dingoerr.OK}
}

func envelopeFrom(err error) *ErrorEnvelope {
	if err == nil {
		return envelopeOK()
	}
	if de, ok := err.(*dingoerr.Error); ok {
		return &ErrorEnvelope{
			Code:            de.Code,
			Message:         de.Message,
			LeaderLocation:  de.LeaderLocation,
			StoreRegionInfo: de.StoreRegionInfo,
			TxnResult:       de.TxnResult,
		}
	}
	return &ErrorEnvelope{Code: dingoerr.Internal, Message: err.Error()}
}

// AsError converts a wire-received envelope back into a *dingoerr.Error,
// or nil if it represents success.
func (e *ErrorEnvelope) AsError() *dingoerr.Error {
	if e == nil || e.Code == dingoerr.OK {
		return nil
	}
	return (&dingoerr.Error{
		Code:            e.Code,
		Message:         e.Message,
		LeaderLocation:  e.LeaderLocation,
		StoreRegionInfo: e.StoreRegionInfo,
		TxnResult:       e.TxnResult,
	})
}

// requestFrame is what crosses the wire for every call: a method name
// dispatch key, the shared RequestContext, and a gob-encoded body
// whose concrete type the method name implies.
type requestFrame struct {
	Method  string
	Context RequestContext
	Body    []byte
}

// responseFrame is what crosses the wire back: the error envelope plus
// a gob-encoded body (empty on error).
type responseFrame struct {
	Error *ErrorEnvelope
	Body  []byte
}

func encodeBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBody(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
