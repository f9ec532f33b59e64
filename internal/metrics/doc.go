// Copyright 2024 RainyModel Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package metrics provides two complementary views onto request traffic:

  - Collector: ops-facing Prometheus counters/histograms registered via
    promauto, covering HTTP, upstream calls, fallbacks, and HF-gate trips.
  - AnalyticsStore: a bounded, thread-safe, in-memory store of per-request
    records and system-log lines, aggregated on demand for the dashboard
    (overview, per-provider, per-model, financial, timeseries, errors,
    policies, fallback chains, raw request log, raw system log).

AnalyticsStore never touches Prometheus and Collector never retains
per-request history; callers typically feed both from the same request
completion hook.
*/
package metrics
