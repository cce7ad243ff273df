package share_test

import (
	"testing"

	"github.com/okian/pepai/internal/share"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		link, id, data string
	}{
		{"abc+def", "", "abc+def"},
		{"  abc  ", "", "abc"},
		{"https://x/?data=abc+def", "", "abc+def"},
		{"https://x/?data=abc%2Bdef", "", "abc+def"},
		{"https://x/?id=42&data=zzz", "42", ""},
		{"data=q", "", "q"},
		{"?id=7", "7", ""},
	}
	for _, tt := range tests {
		id, data := share.ParseLink(tt.link)
		if id != tt.id || data != tt.data {
			t.Errorf("ParseLink(%q) = %q, %q; want %q, %q", tt.link, id, data, tt.id, tt.data)
		}
	}
}
