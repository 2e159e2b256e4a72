package injected

import (
	"reflect"
	"testing"
)

func TestNormalizeAddresses(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{
			name: "bare string slice",
			in:   []string{"xch1abc", "xch1def"},
			want: []string{"xch1abc", "xch1def"},
		},
		{
			name: "json-decoded string array",
			in:   []any{"xch1abc"},
			want: []string{"xch1abc"},
		},
		{
			name: "accounts field",
			in:   map[string]any{"accounts": []any{"xch1abc"}},
			want: []string{"xch1abc"},
		},
		{
			name: "addresses field",
			in:   map[string]any{"addresses": []any{"xch1abc", "xch1def"}},
			want: []string{"xch1abc", "xch1def"},
		},
		{
			name: "wallets field",
			in:   map[string]any{"wallets": []any{"xch1abc"}},
			want: []string{"xch1abc"},
		},
		{
			name: "object list with address field",
			in:   []any{map[string]any{"address": "xch1abc"}, map[string]any{"addr": "xch1def"}},
			want: []string{"xch1abc", "xch1def"},
		},
		{
			name: "object list with account field",
			in:   []any{map[string]any{"account": "xch1abc"}},
			want: []string{"xch1abc"},
		},
		{
			name: "nested keyed object list",
			in:   map[string]any{"wallets": []any{map[string]any{"address": "xch1abc"}}},
			want: []string{"xch1abc"},
		},
		{
			name: "doubly nested keyed object",
			in:   map[string]any{"wallets": map[string]any{"addresses": []any{"xch1deep"}}},
			want: []string{"xch1deep"},
		},
		{
			name: "empty list",
			in:   []any{},
			want: nil,
		},
		{
			name: "empty strings filtered",
			in:   []string{"", ""},
			want: nil,
		},
		{
			name: "unrecognized shape",
			in:   42,
			want: nil,
		},
		{
			name: "nil",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAddresses(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeAddresses(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTxID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"bare string", "tx999", "tx999"},
		{"id field", map[string]any{"id": "tx999"}, "tx999"},
		{"txId field", map[string]any{"txId": "tx999"}, "tx999"},
		{"txid field", map[string]any{"txid": "tx999"}, "tx999"},
		{"hash field", map[string]any{"hash": "0xabc"}, "0xabc"},
		{"id preferred over hash", map[string]any{"id": "tx1", "hash": "0xabc"}, "tx1"},
		{"empty string falls through", "", SubmittedTxID},
		{"opaque object", map[string]any{"status": "ok"}, SubmittedTxID},
		{"nil", nil, SubmittedTxID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTxID(tt.in); got != tt.want {
				t.Errorf("NormalizeTxID(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractOfferParam(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"bare string", "offer1xyz", "offer1xyz"},
		{"offer field", map[string]any{"offer": "offer1xyz"}, "offer1xyz"},
		{"singleton any array", []any{"offer1xyz"}, "offer1xyz"},
		{"singleton string array", []string{"offer1xyz"}, "offer1xyz"},
		{"singleton array of object", []any{map[string]any{"offer": "offer1xyz"}}, "offer1xyz"},
		{"two-element array rejected", []any{"offer1a", "offer1b"}, ""},
		{"missing offer field", map[string]any{"fee": 0}, ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractOfferParam(tt.in); got != tt.want {
				t.Errorf("ExtractOfferParam(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
