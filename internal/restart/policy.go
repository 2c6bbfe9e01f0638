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

// Package restart decides when a long-lived process should exit so that its
// supervisor (systemd, the fleet launcher) starts a fresh copy.
// restart 包决定长期运行的进程何时退出，以便由外部守护重新拉起。
//
// The interval is keyed by the lower-cased process name under
// periodicrestart and is looked up again on every call, so edits to the
// configuration file take effect on the next loop iteration.
package restart

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Section is the configuration section holding per-process intervals.
const Section = "periodicrestart"

// Lookup is the subset of the configuration source the policy needs.
type Lookup interface {
	Get(path ...string) string
}

// Interval returns the restart interval configured for name. Zero or an
// absent key means never restart.
// Interval 返回 name 对应的重启间隔，0 或未配置表示不重启。
func Interval(src Lookup, name string) (time.Duration, error) {
	key := strings.ToLower(name)
	raw := strings.TrimSpace(src.Get(Section, key))
	if raw == "" {
		return 0, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s.%s value %q: %w", Section, key, raw, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("invalid %s.%s value %d: must not be negative", Section, key, seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// Due reports whether elapsed run time has passed a nonzero interval.
// Due 判断运行时间是否已超过非零的重启间隔。
func Due(interval, elapsed time.Duration) bool {
	return interval > 0 && elapsed > interval
}
