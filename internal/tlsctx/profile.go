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

package tlsctx

import (
	"time"

	"github.com/arcctl/actd/internal/config"
)

// Profile is the default middleware profile captured at startup. It carries
// the configured proxy path, CA directory and network timeout with
// credentials skipped. It never produces a tls.Config: real authentication
// always goes through Builder.
// Profile 是启动时记录的默认中间件配置，不参与任何信任决策。
type Profile struct {
	ProxyPath       string
	CACertDir       string
	Timeout         time.Duration
	SkipCredentials bool
}

// DefaultProfile builds the startup profile from static settings.
func DefaultProfile(cfg *config.Config) Profile {
	return Profile{
		ProxyPath:       cfg.VOMS.ProxyPath,
		CACertDir:       cfg.VOMS.CACertDir,
		Timeout:         time.Duration(cfg.Network.Timeout) * time.Second,
		SkipCredentials: true,
	}
}
