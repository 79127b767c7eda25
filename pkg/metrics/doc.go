/*
Package metrics defines and registers the Prometheus metrics exposed by
each worker process, and a small helper for timing work.

# Architecture

Each binary imports this package, which registers its metrics with the
default Prometheus registry at init time, and serves them at /metrics
via Handler(). There is no per-process registry plumbing to wire up;
importing the package is enough.

# Metric Categories

Heartbeat: HeartbeatsTotal, HeartbeatFailuresTotal — one increment per
heartbeat publish attempt, labeled by component name.

Work cycles: WorkCyclesTotal, WorkCycleDuration — one increment/
observation per work-loop iteration (a full drain-to-idle pass, not a
single claim).

Quarantine: QuarantinesTotal, QuarantineFailuresTotal — labeled by
component and by entity kind (TransferRequest, Bundle).

Bundling: BundlesCreatedTotal — bundles emitted by the Picker or
Locator.

File Catalog: CatalogFilesReturnedTotal, CatalogPagesFetchedTotal —
paging cost of catalog queries.

Rucio staging: RucioInboxBytes, RucioQuotaBytes (gauges reflecting the
last admission-control decision), RucioBundlesUnclaimedTotal,
RucioBundlesStagedTotal.

# Readiness

A small in-memory component registry (RegisterComponent,
UpdateComponent) backs HealthHandler, ReadyHandler, and
LivenessHandler: the heartbeat and work loops report into it on every
cycle, so readiness reflects an actually-running worker rather than
just process liveness.

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
