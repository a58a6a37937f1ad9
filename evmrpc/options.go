package evmrpc

import (
	"crypto/tls"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang-jwt/jwt/v5"

	gateway "github.com/iotaevm/gateway"
)

// dialTimeout bounds each HTTP round trip through the dialed client.
const dialTimeout = 30 * time.Second

// Option customizes how Dial connects to an endpoint.
type Option func(*dialConfig)

type dialConfig struct {
	tls     *tls.Config
	jwtCred string
	headers map[string]string
}

// WithTLS installs mTLS material for the HTTP transport. A nil config is a
// no-op so callers can pass through the optional result of config loading.
func WithTLS(tc *tls.Config) Option {
	return func(dc *dialConfig) {
		dc.tls = tc
	}
}

// WithJWT authenticates against a guarded endpoint. When cred decodes as a
// 32-byte hex secret the client mints a fresh HS256 token per request, the
// way execution clients guard their engine endpoints. Any other non-empty
// value is sent verbatim as a bearer token.
func WithJWT(cred string) Option {
	return func(dc *dialConfig) {
		dc.jwtCred = cred
	}
}

// WithHTTPHeader attaches a static header to every request.
func WithHTTPHeader(key, value string) Option {
	return func(dc *dialConfig) {
		if dc.headers == nil {
			dc.headers = make(map[string]string)
		}
		dc.headers[key] = value
	}
}

// clientOptions lowers the dial config into go-ethereum client options.
func (dc *dialConfig) clientOptions() ([]rpc.ClientOption, error) {
	var opts []rpc.ClientOption

	if dc.tls != nil {
		opts = append(opts, rpc.WithHTTPClient(&http.Client{
			Timeout: dialTimeout,
			Transport: &http.Transport{
				TLSClientConfig: dc.tls,
			},
		}))
	}
	if dc.jwtCred != "" {
		auth, err := authFromCredential(dc.jwtCred)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rpc.WithHTTPAuth(auth))
	}
	for k, v := range dc.headers {
		opts = append(opts, rpc.WithHeader(k, v))
	}
	return opts, nil
}

// authFromCredential builds the request authenticator for a configured
// credential: a 64-char hex string becomes a signing secret, anything else
// a static bearer token.
func authFromCredential(cred string) (rpc.HTTPAuth, error) {
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return nil, gateway.Validationf("empty jwt credential")
	}
	if secret, ok := decodeJWTSecret(cred); ok {
		return jwtAuth(secret), nil
	}
	return bearerAuth(cred), nil
}

// decodeJWTSecret accepts a 32-byte hex string, with or without 0x prefix.
func decodeJWTSecret(cred string) ([32]byte, bool) {
	var secret [32]byte
	s := strings.TrimPrefix(cred, "0x")
	if len(s) != 64 {
		return secret, false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return secret, false
	}
	copy(secret[:], raw)
	return secret, true
}

// bearerAuth attaches a static bearer token.
func bearerAuth(token string) rpc.HTTPAuth {
	return func(h http.Header) error {
		h.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// jwtAuth mints a short-lived HS256 token per request. Guarded endpoints
// reject tokens with stale issued-at claims, so the token cannot be reused.
func jwtAuth(secret [32]byte) rpc.HTTPAuth {
	return func(h http.Header) error {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iat": time.Now().Unix(),
		})
		signed, err := token.SignedString(secret[:])
		if err != nil {
			return err
		}
		h.Set("Authorization", "Bearer "+signed)
		return nil
	}
}
