package util

import (
	"net/http"
	"testing"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "", "localhost,.internal")

	tests := []struct {
		target string
		want   string
	}{
		{target: "http://en.wikipedia.org/wiki/Bond", want: "http://proxy.local:3128"},
		{target: "https://api.openai.com/v1/chat", want: "http://proxy.local:3128"},
		{target: "http://localhost:11434/api/generate", want: ""},
		{target: "http://ollama.internal/api/tags", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, tt.target, nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := proxy(req)
			if err != nil {
				t.Fatalf("proxy: %v", err)
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected direct connection, got %s", got)
				}
				return
			}
			if got == nil || got.String() != tt.want {
				t.Errorf("proxy = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestNewProxyFunc_SeparateHTTPS(t *testing.T) {
	proxy := NewProxyFunc("http://plain:80", "http://secure:443", "")
	req, _ := http.NewRequest(http.MethodGet, "https://en.wikipedia.org/", nil)
	got, err := proxy(req)
	if err != nil || got == nil || got.Host != "secure:443" {
		t.Fatalf("proxy = %v, %v; want secure:443", got, err)
	}
}
