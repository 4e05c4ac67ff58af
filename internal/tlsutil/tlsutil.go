// Package tlsutil 提供出站连接 (LLM 服务与 Redis) 使用的 TLS 配置.
// 最低 TLS 1.2, TLS 1.2 下仅允许 AEAD 密码套件.
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// ClientConfig 返回客户端 TLS 配置. serverName 为空时由调用方的拨号地址推断.
// insecure 跳过证书校验, 用于自签名证书的内网推理服务.
func ClientConfig(serverName string, insecure bool) *tls.Config {
	suites := make([]uint16, len(aeadSuites))
	copy(suites, aeadSuites)
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		CipherSuites:       suites,
		ServerName:         serverName,
		InsecureSkipVerify: insecure, //nolint:gosec // 显式配置项
	}
}

// Transport 返回带连接复用参数的 http.Transport.
// 翻译分组并发请求同一个后端, 每主机空闲连接数需要覆盖并发度.
func Transport(insecure bool) *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: ClientConfig("", insecure),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// HTTPClient 返回使用 Transport 的客户端
func HTTPClient(timeout time.Duration, insecure bool) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(insecure),
	}
}
