package gfapi

import (
	"encoding/json"
	"testing"
)

func TestNormalizeError_CodeFallbackOrder(t *testing.T) {
	cases := []struct {
		name        string
		env         *envelope
		httpStatus  int
		wantCode    int
		wantMessage string
	}{
		{
			name: "numeric error code wins over HTTP status",
			env: &envelope{
				Status: "FAILURE",
				Error:  &envelopeError{Code: json.RawMessage(`404`), Message: "not found"},
			},
			httpStatus:  500,
			wantCode:    404,
			wantMessage: "not found",
		},
		{
			name: "string error code is coerced",
			env: &envelope{
				Status: "FAILURE",
				Error:  &envelopeError{Code: json.RawMessage(`"429"`), Message: "slow down"},
			},
			httpStatus:  200,
			wantCode:    429,
			wantMessage: "slow down",
		},
		{
			name: "missing error code falls back to HTTP status",
			env: &envelope{
				Status: "FAILURE",
				Error:  &envelopeError{Message: "bad"},
			},
			httpStatus:  503,
			wantCode:    503,
			wantMessage: "bad",
		},
		{
			name:        "no envelope and no status falls back to 500",
			env:         nil,
			httpStatus:  0,
			wantCode:    500,
			wantMessage: "Unknown error",
		},
		{
			name: "unparseable code falls back to HTTP status",
			env: &envelope{
				Status: "FAILURE",
				Error:  &envelopeError{Code: json.RawMessage(`"ERR_X"`)},
			},
			httpStatus:  400,
			wantCode:    400,
			wantMessage: "Unknown error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeError(tc.env, tc.httpStatus)
			if got.Code != tc.wantCode {
				t.Errorf("Code = %d, want %d", got.Code, tc.wantCode)
			}
			if got.Message != tc.wantMessage {
				t.Errorf("Message = %q, want %q", got.Message, tc.wantMessage)
			}
		})
	}
}

func TestCoerceCode(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`404`, 404},
		{`"404"`, 404},
		{`"abc"`, 0},
		{`null`, 0},
		{``, 0},
		{`{"nested":true}`, 0},
	}

	for _, tc := range cases {
		if got := coerceCode(json.RawMessage(tc.raw)); got != tc.want {
			t.Errorf("coerceCode(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
