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

// Package credential resolves rotating per-job proxy credentials to files.
// credential 包将轮换的作业代理凭证解析为磁盘文件路径。
package credential

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrInvalidCredentialID reports an identifier that cannot name a proxy file.
// ErrInvalidCredentialID 表示无法对应代理文件的标识符。
var ErrInvalidCredentialID = errors.New("credential: invalid credential id")

// ID identifies one proxy credential.
type ID int64

// Store maps a credential identifier to a combined certificate+key file.
// Store 将凭证标识符映射为证书与私钥合一的文件路径。
type Store interface {
	Path(id ID) (string, error)
}

// FileStore resolves proxies inside a directory rotated by an external actor.
// The file is not opened here; its presence is checked by whoever reads it.
// FileStore 在外部轮换的目录中解析代理文件，此处不检查文件是否存在。
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the proxy directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns <dir>/proxiesid<id>.
func (s *FileStore) Path(id ID) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidCredentialID, id)
	}
	return filepath.Join(s.dir, fmt.Sprintf("proxiesid%d", id)), nil
}
