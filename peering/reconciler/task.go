// Copyright 2025 The peermgr authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reconciler

import (
	"context"

	"github.com/peermgr/peermgr/pkg/log"
)

// PollTask polls session states on every exchange that has polling
// enabled and a router to poll. It implements periodic.Task; a failing
// exchange does not stop the sweep.
type PollTask struct {
	Reconciler *Reconciler
}

// Name implements periodic.Task.
func (t *PollTask) Name() string {
	return "session_state_poller"
}

// Run implements periodic.Task.
func (t *PollTask) Run(ctx context.Context) {
	logger := log.FromCtx(ctx)
	exchanges, err := t.Reconciler.db.ListExchanges(ctx)
	if err != nil {
		logger.Error("Listing exchanges for poll sweep", "err", err)
		return
	}
	for _, ix := range exchanges {
		if !ix.CheckBGPSessionStates || !ix.HasRouter() {
			continue
		}
		if err := t.Reconciler.PollExchange(ctx, ix.ID); err != nil {
			logger.Info("Polling exchange failed",
				"exchange", ix.Slug, "err", err)
		}
	}
}

// SyncTask refreshes every AS marked keep-synced from the registry. It
// implements periodic.Task.
type SyncTask struct {
	Reconciler *Reconciler
}

// Name implements periodic.Task.
func (t *SyncTask) Name() string {
	return "registry_as_sync"
}

// Run implements periodic.Task.
func (t *SyncTask) Run(ctx context.Context) {
	logger := log.FromCtx(ctx)
	ases, err := t.Reconciler.db.ListAutonomousSystems(ctx)
	if err != nil {
		logger.Error("Listing autonomous systems for sync sweep", "err", err)
		return
	}
	for _, as := range ases {
		if !as.KeepSynced {
			continue
		}
		if _, err := t.Reconciler.SynchronizeWithPeeringDB(ctx, as.ASN); err != nil {
			logger.Info("Synchronizing AS failed", "asn", as.ASN, "err", err)
		}
	}
}
