package authlevel

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAllCombinations(t *testing.T) {
	for _, mail := range []bool{false, true} {
		for _, mobile := range []bool{false, true} {
			for _, document := range []bool{false, true} {
				want := Base
				switch {
				case document:
					want = Document
				case mobile:
					want = Phone
				case mail:
					want = Mail
				}
				f := Flags{Mail: mail, Mobile: mobile, Document: document}
				assert.Equal(t, want, Compute(f), "flags %+v", f)
			}
		}
	}
}

// The highest completed step wins even when lower steps are still open.
// This is the intended tier rule, not a chain check.
func TestComputeDocumentOnlyIsTopLevel(t *testing.T) {
	require.Equal(t, Document, Compute(Flags{Document: true}))
	require.Equal(t, Phone, Compute(Flags{Mobile: true}))
}

func TestCheck(t *testing.T) {
	levels := []Level{Anonymous, Base, Mail, Phone, Document}
	for _, current := range levels {
		for _, required := range levels[1:] {
			err := Check(current, required)
			if current >= required {
				assert.NoError(t, err, "current %s required %s", current, required)
				continue
			}
			var denied *DeniedError
			require.True(t, errors.As(err, &denied), "current %s required %s", current, required)
			assert.Equal(t, required, denied.Required)
			assert.Equal(t, current, denied.Current)
			assert.Equal(t, Reason(required), denied.Reason)
		}
	}
}

func TestCheckReasons(t *testing.T) {
	cases := []struct {
		current, required Level
		reason            string
		code              int
	}{
		{Anonymous, Base, "requires authentication", http.StatusUnauthorized},
		{Base, Mail, "requires email confirmation", StatusInsufficientLevel},
		{Mail, Phone, "requires phone confirmation", StatusInsufficientLevel},
		{Phone, Document, "requires document confirmation", StatusInsufficientLevel},
	}
	for _, tc := range cases {
		var denied *DeniedError
		require.ErrorAs(t, Check(tc.current, tc.required), &denied)
		assert.Equal(t, tc.reason, denied.Reason)
		assert.Equal(t, tc.code, denied.Code)
	}
}

func TestCheckWorkedExample(t *testing.T) {
	require.NoError(t, Check(Mail, Mail))

	var denied *DeniedError
	require.ErrorAs(t, Check(Mail, Phone), &denied)
	require.Equal(t, "requires phone confirmation", denied.Reason)
}

type recordingSink struct {
	requests []Request
	denials  []*DeniedError
}

func (s *recordingSink) LogDenial(_ context.Context, req Request, d *DeniedError) {
	s.requests = append(s.requests, req)
	s.denials = append(s.denials, d)
}

func TestGateAuditsDenialsOnly(t *testing.T) {
	sink := &recordingSink{}
	gate := NewGate(sink)
	req := Request{Session: "sid=1", Resource: "/api/v1/me"}

	require.NoError(t, gate.Require(context.Background(), req, Phone, Mail))
	require.Empty(t, sink.denials)

	err := gate.Require(context.Background(), req, Base, Phone)
	require.Error(t, err)
	require.Len(t, sink.denials, 1)
	assert.Equal(t, req, sink.requests[0])
	assert.Equal(t, Phone, sink.denials[0].Required)
}

func TestGateWithoutSink(t *testing.T) {
	gate := NewGate(nil)
	require.Error(t, gate.Require(context.Background(), Request{}, Anonymous, Base))
}
