package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/reelqueue/reelqueue/internal/store"
	"go.uber.org/zap"
)

const collectTimeout = 5 * time.Second

type jobStatsCollector struct {
	store     store.Store
	totalJobs *prometheus.Desc
}

func newJobStatsCollector(s store.Store) prometheus.Collector {
	return &jobStatsCollector{
		store: s,
		totalJobs: prometheus.NewDesc(
			fmt.Sprintf("%s_jobs", reelqueue),
			"Number of stored jobs by provider and status.",
			[]string{providerLabel, statusLabel},
			prometheus.Labels{},
		),
	}
}

// RegisterJobStatsCollector exposes the stored job counts, computed at scrape time.
func RegisterJobStatsCollector(s store.Store) error {
	return prometheus.Register(newJobStatsCollector(s))
}

func (c *jobStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalJobs
}

// Collect implements Collector.
func (c *jobStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	stats, err := c.store.Job().Stats(ctx)
	if err != nil {
		zap.S().Named("job_collector").Errorw("failed to collect job statistics", "error", err)
		return
	}

	for _, s := range stats {
		ch <- prometheus.MustNewConstMetric(c.totalJobs, prometheus.GaugeValue, float64(s.Count), s.Provider, s.Status)
	}
}
