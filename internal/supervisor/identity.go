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

package supervisor

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Identity names a process and the site it is scoped to. It is fixed at
// construction.
// Identity 标识进程及其所属站点，构造后不可变。
type Identity struct {
	// Name keys the periodic restart policy and the log file.
	Name string

	// Site is the optional site or cluster identifier (URL or hostname).
	// Empty means the process is not scoped to a site.
	Site string
}

// NewIdentity creates an identity.
func NewIdentity(name, site string) Identity {
	return Identity{Name: name, Site: site}
}

// NameFromExecutable derives a process name from an invocation path by
// dropping the directory and extension.
// NameFromExecutable 从调用路径推导进程名（去掉目录与扩展名）。
func NameFromExecutable(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SiteHost returns the host part of Site when it is a URL, else Site itself.
// SiteHost 在 Site 为 URL 时返回主机名，否则返回 Site 本身。
func (i Identity) SiteHost() string {
	if i.Site == "" {
		return ""
	}
	if u, err := url.Parse(i.Site); err == nil && u.Host != "" {
		return u.Hostname()
	}
	return i.Site
}

// LogName returns the operational log name: <name>-<sitehost>, or <name>
// when no site is set.
func (i Identity) LogName() string {
	host := i.SiteHost()
	if host == "" {
		return i.Name
	}
	return i.Name + "-" + strings.NewReplacer("/", "_", ":", "_").Replace(host)
}
