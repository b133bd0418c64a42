package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-desk/internal/common"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": "10.0.0.7, 172.16.0.1"}, remote: "127.0.0.1:9", want: "10.0.0.7"},
		{name: "malformed forwarded falls through", headers: map[string]string{"X-Forwarded-For": "till-3", "X-Real-IP": "10.0.0.8"}, remote: "127.0.0.1:9", want: "10.0.0.8"},
		{name: "peer address", remote: "192.168.1.20:51000", want: "192.168.1.20"},
		{name: "peer without port", remote: "192.168.1.21", want: "192.168.1.21"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, common.ClientIP(req))
		})
	}
}

func TestSha256HexSeparatesParts(t *testing.T) {
	require.NotEqual(t, common.Sha256Hex("ab", "c"), common.Sha256Hex("a", "bc"))
	require.Len(t, common.Sha256Hex("x"), 64)
}
