package peek

import "testing"

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "https://example.com/page", want: "https://example.com/page"},
		{in: "https://www.google.com/url?q=x&url=https%3A%2F%2Ftarget.example%2Fpath%3Fa%3D1", want: "https://target.example/path?a=1"},
		{in: "https://r.example/out?url=http://plain.example/", want: "http://plain.example/"},
		{in: "https://r.example/?url=HTTPS://Upper.example", want: "HTTPS://Upper.example"},
		{in: "https://r.example/?url=/relative/path", want: "https://r.example/?url=/relative/path"},
		{in: "https://r.example/?url=ftp://files.example", want: "https://r.example/?url=ftp://files.example"},
		{in: "https://r.example/?redirect_url=https://x.example", want: "https://r.example/?redirect_url=https://x.example"},
		{in: "https://r.example/?URL=https://x.example", want: "https://r.example/?URL=https://x.example"},
		{in: "://not a url", want: "://not a url"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := ResolveTarget(tt.in); got != tt.want {
			t.Errorf("ResolveTarget(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
