// Package tlsutil 集中管理进程内所有 TLS 参数。
// 客户端与服务端共用同一套基线：TLS 1.2 起步，只允许 AEAD 套件。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// aeadCipherSuites 是允许协商的全部套件。
// CBC 与 RC4 系列一律排除。
var aeadCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// baseConfig 返回客户端与服务端共享的基线配置。
func baseConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: append([]uint16(nil), aeadCipherSuites...),
	}
}

// ClientConfig 返回出站连接用的 TLS 配置。
func ClientConfig() *tls.Config {
	return baseConfig()
}

// ServerConfig 返回入站监听用的 TLS 配置。
// 服务端额外偏好自己的套件顺序。
func ServerConfig() *tls.Config {
	cfg := baseConfig()
	cfg.PreferServerCipherSuites = true
	return cfg
}

// SecureTransport 返回套用基线 TLS 的 http.Transport。
func SecureTransport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: ClientConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SecureHTTPClient 返回套用基线 TLS 的 http.Client，
// 可直接替换 &http.Client{Timeout: timeout}。
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(),
	}
}
