// Copyright 2024 The PolliNet Authors
// This file is part of the PolliNet core.
//
// The PolliNet core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The PolliNet core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the PolliNet core. If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"fmt"
	"time"

	client "github.com/influxdata/influxdb/client/v2"

	"github.com/pollinet/pollinet-core/log"
)

// InfluxDBConfig configures the optional periodic push named in spec §9
// as an enrichment over the bare counters. Disabled (Enabled == false)
// by default — pushing metrics off-device is an explicit host opt-in.
type InfluxDBConfig struct {
	Enabled  bool
	Endpoint string
	Database string
	Username string
	Password string
	Tags     map[string]string
	Interval time.Duration
}

// InfluxDBReporter periodically pushes Registry snapshots to an
// InfluxDB v1 HTTP endpoint.
type InfluxDBReporter struct {
	cfg      InfluxDBConfig
	registry *Registry
	client   client.Client
	log      *log.Logger
}

// NewInfluxDBReporter constructs a reporter. It dials the InfluxDB HTTP
// endpoint eagerly so a misconfigured address is surfaced at startup
// rather than on the first periodic push.
func NewInfluxDBReporter(cfg InfluxDBConfig, registry *Registry) (*InfluxDBReporter, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.Endpoint,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: influxdb client: %w", err)
	}
	return &InfluxDBReporter{
		cfg:      cfg,
		registry: registry,
		client:   c,
		log:      log.New("metrics.influxdb"),
	}, nil
}

// Push writes one Snapshot as a single "pollinet" measurement point.
func (r *InfluxDBReporter) Push(snap Snapshot) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  r.cfg.Database,
		Precision: "s",
	})
	if err != nil {
		return fmt.Errorf("metrics: new batch points: %w", err)
	}

	fields := map[string]interface{}{
		"fragments_buffered":     snap.FragmentsBuffered,
		"transactions_complete":  snap.TransactionsComplete,
		"reassembly_failures":    snap.ReassemblyFailures,
		"packets_rebroadcast":    snap.PacketsRebroadcast,
		"packets_seen_duplicate": snap.PacketsSeenDuplicate,
		"rate_limit_rejections":  snap.RateLimitRejections,
		"outbound_depth":         snap.OutboundDepth,
		"received_depth":         snap.ReceivedDepth,
		"retry_depth":            snap.RetryDepth,
		"confirm_depth":          snap.ConfirmDepth,
		"dedup_set_size":         snap.DedupSetSize,
		"retry_exhausted_total":  snap.RetryExhaustedTotal,
		"duplicate_submissions":  snap.DuplicateSubmissions,
	}
	pt, err := client.NewPoint("pollinet", r.cfg.Tags, fields, time.Now())
	if err != nil {
		return fmt.Errorf("metrics: new point: %w", err)
	}
	bp.AddPoint(pt)

	if err := r.client.Write(bp); err != nil {
		return fmt.Errorf("metrics: write: %w", err)
	}
	return nil
}

// Run collects and pushes a snapshot every cfg.Interval until stop is
// closed. It logs and continues past a single failed push rather than
// tearing down the loop — a transient InfluxDB outage should not affect
// relay operation.
func (r *InfluxDBReporter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.Push(r.registry.Collect()); err != nil {
				r.log.Warn("InfluxDB push failed", "err", err)
			}
		case <-stop:
			return
		}
	}
}

// Close releases the underlying HTTP client.
func (r *InfluxDBReporter) Close() error {
	return r.client.Close()
}
