package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Metrics) BatchesCounter() prometheus.Counter { return m.batches }
