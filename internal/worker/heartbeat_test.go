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
	"path/filepath"
	"testing"
	"time"

	"github.com/arcctl/actd/internal/config"
	"github.com/arcctl/actd/internal/db"
	"github.com/arcctl/actd/internal/supervisor"
	"github.com/arcctl/actd/internal/tlsctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *db.Handle {
	t.Helper()
	handle, err := db.Open("db", config.DatabaseConfig{
		Type:       config.DatabaseTypeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "act.db"),
		LogLevel:   "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	return handle
}

func TestHeartbeatUpsertsOneRow(t *testing.T) {
	ctx := context.Background()
	handle := openTestDB(t)

	hb, err := NewHeartbeat(ctx, handle, supervisor.NewIdentity("aCTSubmitter", "siteA"), zap.NewNop())
	require.NoError(t, err)
	hb.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, hb.Process(ctx))
	require.NoError(t, hb.Process(ctx))

	row, err := LatestHeartbeat(ctx, handle, "aCTSubmitter", "siteA")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Iterations)
	assert.Equal(t, hb.pid, row.PID)
	assert.True(t, row.LastSeen.Equal(hb.now()))

	rows, err := ListHeartbeats(ctx, handle)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestHeartbeatRestartResetsIterations(t *testing.T) {
	ctx := context.Background()
	handle := openTestDB(t)
	identity := supervisor.NewIdentity("aCTStatus", "")

	first, err := NewHeartbeat(ctx, handle, identity, zap.NewNop())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, first.Process(ctx))
	}

	second, err := NewHeartbeat(ctx, handle, identity, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, second.Process(ctx))

	row, err := LatestHeartbeat(ctx, handle, "aCTStatus", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.Iterations)
}

func TestListHeartbeatsOrder(t *testing.T) {
	ctx := context.Background()
	handle := openTestDB(t)

	rows, err := ListHeartbeats(ctx, handle)
	require.NoError(t, err)
	assert.Empty(t, rows)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, site := range []string{"siteA", "siteB", "siteC"} {
		hb, err := NewHeartbeat(ctx, handle, supervisor.NewIdentity("aCTFetcher", site), zap.NewNop())
		require.NoError(t, err)
		seen := base.Add(time.Duration(i) * time.Minute)
		hb.now = func() time.Time { return seen }
		require.NoError(t, hb.Process(ctx))
	}

	rows, err = ListHeartbeats(ctx, handle)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "siteC", rows[0].Site)
	assert.Equal(t, "siteA", rows[2].Site)
}

func TestLatestHeartbeatNotFound(t *testing.T) {
	ctx := context.Background()
	handle := openTestDB(t)

	// Nothing has migrated the table yet.
	_, err := LatestHeartbeat(ctx, handle, "aCTFetcher", "")
	assert.ErrorIs(t, err, ErrHeartbeatNotFound)

	_, err = NewHeartbeat(ctx, handle, supervisor.NewIdentity("aCTFetcher", ""), zap.NewNop())
	require.NoError(t, err)

	_, err = LatestHeartbeat(ctx, handle, "aCTFetcher", "nowhere")
	assert.ErrorIs(t, err, ErrHeartbeatNotFound)
}

func TestHeartbeatClosedHandle(t *testing.T) {
	ctx := context.Background()
	handle := openTestDB(t)
	hb, err := NewHeartbeat(ctx, handle, supervisor.NewIdentity("aCTFetcher", ""), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, handle.Close())
	assert.ErrorIs(t, hb.Process(ctx), db.ErrClosed)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, []string{"check", "heartbeat"}, Names())

	_, err := New(ctx, "submitter", &supervisor.Environment{})
	assert.ErrorIs(t, err, ErrUnknownUnit)

	env := &supervisor.Environment{
		Identity: supervisor.NewIdentity("actd", "siteA"),
		Log:      zap.NewNop(),
		JobDB:    openTestDB(t),
		Contexts: tlsctx.NewBuilder(nil),
		Profile:  tlsctx.Profile{Timeout: 3 * time.Second},
	}

	unit, err := New(ctx, "heartbeat", env)
	require.NoError(t, err)
	assert.IsType(t, &Heartbeat{}, unit)

	unit, err = New(ctx, "check", env)
	require.NoError(t, err)
	require.IsType(t, &Checker{}, unit)
	assert.Equal(t, 3*time.Second, unit.(*Checker).timeout)
}
