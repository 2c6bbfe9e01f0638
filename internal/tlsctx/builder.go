/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package tlsctx builds client TLS contexts authenticated by rotating proxy
// credentials.
// tlsctx 包使用轮换的代理凭证构建客户端 TLS 上下文。
package tlsctx

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/arcctl/actd/internal/credential"
	"google.golang.org/grpc/credentials"
)

// Errors for context construction
// 构建上下文的错误定义
var (
	// ErrCredentialNotFound indicates the proxy file does not exist.
	// ErrCredentialNotFound 表示代理文件不存在。
	ErrCredentialNotFound = errors.New("tlsctx: credential not found")

	// ErrCertificateFormat indicates the file is not a valid certificate+key pair.
	// ErrCertificateFormat 表示文件不是有效的证书与私钥对。
	ErrCertificateFormat = errors.New("tlsctx: invalid certificate format")

	// ErrNoCACertificates indicates a CA directory holds no PEM certificate.
	// ErrNoCACertificates 表示 CA 目录中没有任何 PEM 证书。
	ErrNoCACertificates = errors.New("tlsctx: no CA certificates found")
)

// cipherSuites lists the TLS 1.2 suites offered, forward-secret AEAD first.
// TLS 1.3 suites are fixed by crypto/tls and always secure.
var cipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_RSA_WITH_AES_256_CBC_SHA,
	tls.TLS_RSA_WITH_AES_128_CBC_SHA,
}

// CipherSuites returns a copy of the fixed cipher suite list.
// CipherSuites 返回固定密码套件列表的副本。
func CipherSuites() []uint16 {
	out := make([]uint16, len(cipherSuites))
	copy(out, cipherSuites)
	return out
}

// Builder derives TLS client contexts from credential identifiers.
// Every call builds a new context; nothing is cached.
// Builder 根据凭证标识符构建 TLS 客户端上下文，每次调用都新建，不做缓存。
type Builder struct {
	store credential.Store

	// roots replaces the system pool when set.
	roots *x509.CertPool
}

// NewBuilder creates a builder resolving identifiers through store.
func NewBuilder(store credential.Store) *Builder {
	return &Builder{store: store}
}

// WithRoots returns a builder whose contexts verify servers against roots
// instead of the system pool. A nil pool restores the system pool.
// WithRoots 返回使用 roots 而非系统根证书校验服务端的构建器。
func (b *Builder) WithRoots(roots *x509.CertPool) *Builder {
	return &Builder{store: b.store, roots: roots}
}

// Build returns a context bound to the proxy identified by id. The proxy
// file holds both the certificate chain and the private key.
// Build 返回绑定到 id 对应代理的上下文，代理文件同时包含证书链与私钥。
func (b *Builder) Build(id credential.ID) (*tls.Config, error) {
	path, err := b.store.Path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, path)
		}
		return nil, fmt.Errorf("failed to read credential %s: %w", path, err)
	}

	cert, err := tls.X509KeyPair(data, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCertificateFormat, path, err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		CipherSuites: CipherSuites(),
		MinVersion:   tls.VersionTLS12,
	}
	if b.roots != nil {
		cfg.RootCAs = b.roots.Clone()
	}
	return cfg, nil
}

// TransportCredentials wraps a freshly built context for gRPC dialing.
// TransportCredentials 将新建的上下文包装为 gRPC 传输凭证。
func (b *Builder) TransportCredentials(id credential.ID) (credentials.TransportCredentials, error) {
	cfg, err := b.Build(id)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(cfg), nil
}

// HTTPClient returns a client whose transport presents the proxy. Keep-alives
// are disabled so the connection does not outlive the request.
// HTTPClient 返回使用该代理的 HTTP 客户端，禁用长连接。
func (b *Builder) HTTPClient(id credential.ID, timeout time.Duration) (*http.Client, error) {
	cfg, err := b.Build(id)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			TLSClientConfig:   cfg,
			DisableKeepAlives: true,
		},
	}, nil
}

// LoadCACertDir builds a pool from every PEM certificate in dir, the layout
// of /etc/grid-security/certificates. Files without certificates (signing
// policies, CRL URLs, namespaces) are skipped.
// LoadCACertDir 从目录中的全部 PEM 证书构建证书池，跳过不含证书的文件。
func LoadCACertDir(dir string) (*x509.CertPool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA directory %s: %w", dir, err)
	}

	pool := x509.NewCertPool()
	found := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate %s: %w", entry.Name(), err)
		}
		if pool.AppendCertsFromPEM(data) {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoCACertificates, dir)
	}
	return pool, nil
}
