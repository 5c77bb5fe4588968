package metrics

import (
	"strconv"
	"time"
)

// AccountQuota is one account's current quota usage, as reported by a Source.
type AccountQuota struct {
	Account   uint32
	UsedBytes uint64
}

// Source is the subset of store state the collector polls on a ticker. No
// type in this module implements it (store.Store's QuotaUsage takes an
// account and returns one counter); kept narrow so this package never
// imports internal/store and its backend dependencies.
type Source interface {
	QuotaUsage() ([]AccountQuota, error)
	TaskQueueDepth() (int, error)
}

// Collector periodically samples gauges that aren't naturally updated at
// the call site, such as quota usage and queue depth.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s ticker.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectQuotaMetrics()
	c.collectTaskQueueMetrics()
}

func (c *Collector) collectQuotaMetrics() {
	usages, err := c.source.QuotaUsage()
	if err != nil {
		return
	}
	for _, u := range usages {
		QuotaUsageBytes.WithLabelValues(strconv.FormatUint(uint64(u.Account), 10)).Set(float64(u.UsedBytes))
	}
}

func (c *Collector) collectTaskQueueMetrics() {
	depth, err := c.source.TaskQueueDepth()
	if err != nil {
		return
	}
	TaskQueueDepth.Set(float64(depth))
}
