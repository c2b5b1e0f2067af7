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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metrics = struct {
	syncTotal          prometheus.Counter
	ixSyncTotal        prometheus.Counter
	discoveryTotal     prometheus.Counter
	discoveredSessions prometheus.Counter
	pollTotal          *prometheus.CounterVec
	importTotal        prometheus.Counter
}{
	syncTotal: promauto.NewCounter(prometheus.CounterOpts{
		Name: "peermgr_registry_sync_total",
		Help: "Completed AS synchronizations against the registry.",
	}),
	ixSyncTotal: promauto.NewCounter(prometheus.CounterOpts{
		Name: "peermgr_exchange_sync_total",
		Help: "Completed exchange prefix synchronizations against the registry.",
	}),
	discoveryTotal: promauto.NewCounter(prometheus.CounterOpts{
		Name: "peermgr_discovery_runs_total",
		Help: "Completed potential-session discovery runs.",
	}),
	discoveredSessions: promauto.NewCounter(prometheus.CounterOpts{
		Name: "peermgr_discovered_sessions_total",
		Help: "Peering sessions created by discovery runs.",
	}),
	pollTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peermgr_session_polls_total",
		Help: "Session state polls by scope and result.",
	}, []string{"scope", "result"}),
	importTotal: promauto.NewCounter(prometheus.CounterOpts{
		Name: "peermgr_session_imports_total",
		Help: "Completed session imports from routers.",
	}),
}
