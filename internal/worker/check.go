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

package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arcctl/actd/internal/credential"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// defaultCheckTimeout applies when the configured network timeout is zero.
const defaultCheckTimeout = 20 * time.Second

// Endpoint schemes understood by the checker. Anything else is dialed as a
// plain host:port TLS endpoint.
const (
	schemeHTTPS = "https://"
	schemeGRPCS = "grpcs://"
)

// CheckSettings is the live configuration the checker reads every iteration.
type CheckSettings interface {
	Get(path ...string) string
	GetList(path ...string) []string
}

// ContextBuilder builds fresh client transports for a credential.
type ContextBuilder interface {
	Build(id credential.ID) (*tls.Config, error)
	HTTPClient(id credential.ID, timeout time.Duration) (*http.Client, error)
	TransportCredentials(id credential.ID) (credentials.TransportCredentials, error)
}

// Checker verifies that each configured endpoint accepts the proxy identified by
// check.proxyid:
//   - https://host[:port]/path  GET through a proxy-authenticated HTTP client
//   - grpcs://host:port         gRPC health check over proxy-authenticated TLS
//   - host:port                 bare TLS handshake
//
// Endpoint failures are logged; a missing or unreadable credential is returned.
// Checker 使用 check.proxyid 指定的代理检查每个端点：HTTPS 请求、gRPC 健康检查或 TLS 握手。
// 端点失败只记录日志，凭证错误直接返回。
type Checker struct {
	settings CheckSettings
	contexts ContextBuilder
	timeout  time.Duration
	log      *zap.Logger
}

// NewChecker creates an endpoint checker.
func NewChecker(settings CheckSettings, contexts ContextBuilder, timeout time.Duration, log *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Checker{settings: settings, contexts: contexts, timeout: timeout, log: log}
}

// Process checks every endpoint once, each with its own freshly built transport.
// Process 为每个端点新建传输并检查一次。
func (c *Checker) Process(ctx context.Context) error {
	endpoints := c.settings.GetList("check", "endpoint")
	if len(endpoints) == 0 {
		c.log.Debug("no check endpoints configured")
		return nil
	}

	id, err := c.credentialID()
	if err != nil {
		return err
	}

	for _, endpoint := range endpoints {
		var check func(context.Context, credential.ID, string) (string, error)
		target := endpoint
		switch {
		case strings.HasPrefix(endpoint, schemeHTTPS):
			check = c.checkHTTPS
		case strings.HasPrefix(endpoint, schemeGRPCS):
			check = c.checkGRPC
			target = strings.TrimPrefix(endpoint, schemeGRPCS)
		default:
			check = c.checkTLS
		}

		detail, err := check(ctx, id, target)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var credErr credentialError
			if errors.As(err, &credErr) {
				return credErr.err
			}
			c.log.Warn("endpoint check failed", zap.String("endpoint", endpoint), zap.Error(err))
			continue
		}
		c.log.Info("endpoint check succeeded", zap.String("endpoint", endpoint), zap.String("detail", detail))
	}
	return nil
}

// credentialError marks a failure to build the transport, as opposed to a
// failure of the endpoint itself.
type credentialError struct {
	err error
}

func (e credentialError) Error() string { return e.err.Error() }

func (c *Checker) credentialID() (credential.ID, error) {
	raw := strings.TrimSpace(c.settings.Get("check", "proxyid"))
	if raw == "" {
		return 0, fmt.Errorf("%w: not set", ErrCheckCredential)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCheckCredential, raw)
	}
	return credential.ID(n), nil
}

func (c *Checker) checkHTTPS(ctx context.Context, id credential.ID, endpoint string) (string, error) {
	client, err := c.contexts.HTTPClient(id, c.timeout)
	if err != nil {
		return "", credentialError{err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Status, nil
}

func (c *Checker) checkGRPC(ctx context.Context, id credential.ID, target string) (string, error) {
	creds, err := c.contexts.TransportCredentials(id)
	if err != nil {
		return "", credentialError{err}
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", target, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return "", err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return "", fmt.Errorf("health status %s", resp.GetStatus())
	}
	return resp.GetStatus().String(), nil
}

func (c *Checker) checkTLS(ctx context.Context, id credential.ID, endpoint string) (string, error) {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	cfg, err := c.contexts.Build(id)
	if err != nil {
		return "", credentialError{err}
	}
	cfg.ServerName = host

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.timeout},
		Config:    cfg,
	}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	return tls.VersionName(state.Version) + " " + tls.CipherSuiteName(state.CipherSuite), nil
}
