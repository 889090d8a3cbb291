package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	eventsMetric = "call_signaling_events_total"
	gaugeMetric  = "call_signaling_presence"
)

// GaugeFunc reports point-in-time values (e.g. presence set sizes) at scrape
// time.
type GaugeFunc func() map[string]int64

// PrometheusHandler exposes counters as a single labelled counter family and
// the optional gauges as a single labelled gauge family, in Prometheus' text
// exposition format.
func PrometheusHandler(m *Metrics, gauges GaugeFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		snap := m.Snapshot()
		_, _ = fmt.Fprintf(w, "# HELP %s Internal event counters.\n", eventsMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", eventsMetric)
		for _, k := range sortedKeys(snap) {
			_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", eventsMetric, escapeLabel(k), snap[k])
		}

		if gauges == nil {
			return
		}
		values := gauges()
		_, _ = fmt.Fprintf(w, "# HELP %s Current presence set sizes.\n", gaugeMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", gaugeMetric)
		for _, k := range sortedKeys(values) {
			_, _ = fmt.Fprintf(w, "%s{set=\"%s\"} %d\n", gaugeMetric, escapeLabel(k), values[k])
		}
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

func escapeLabel(v string) string { return labelEscaper.Replace(v) }
