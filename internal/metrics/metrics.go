package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector provides a minimal Prometheus-compatible metrics exporter.
type Collector struct {
	startedAt time.Time

	classificationsTotal atomic.Uint64
	byLabel              sync.Map // string -> *atomic.Uint64

	chainWrites sync.Map // "method|outcome" -> *atomic.Uint64

	reportsSubmitted atomic.Uint64
	reportsVerified  atomic.Uint64
	dismissals       atomic.Uint64
}

func New() *Collector {
	return &Collector{startedAt: time.Now().UTC()}
}

// IncClassification records one classifier verdict by label.
func (c *Collector) IncClassification(label string) {
	if c == nil {
		return
	}
	c.classificationsTotal.Add(1)
	if label == "" {
		label = "unknown"
	}
	ptr, _ := c.byLabel.LoadOrStore(label, &atomic.Uint64{})
	ptr.(*atomic.Uint64).Add(1)
}

// IncChainWrite records one state-changing ledger call. outcome is
// "ok", "rejected" or "unreachable".
func (c *Collector) IncChainWrite(method, outcome string) {
	if c == nil {
		return
	}
	ptr, _ := c.chainWrites.LoadOrStore(method+"|"+outcome, &atomic.Uint64{})
	ptr.(*atomic.Uint64).Add(1)
}

func (c *Collector) IncReportSubmitted() {
	if c == nil {
		return
	}
	c.reportsSubmitted.Add(1)
}

func (c *Collector) IncReportVerified() {
	if c == nil {
		return
	}
	c.reportsVerified.Add(1)
}

func (c *Collector) IncDismissal() {
	if c == nil {
		return
	}
	c.dismissals.Add(1)
}

func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, "# HELP sitewarden_up Whether the sitewarden server is running.\n")
		fmt.Fprint(w, "# TYPE sitewarden_up gauge\n")
		fmt.Fprint(w, "sitewarden_up 1\n")

		fmt.Fprint(w, "# HELP sitewarden_classifications_total Total classifier verdicts received.\n")
		fmt.Fprint(w, "# TYPE sitewarden_classifications_total counter\n")
		fmt.Fprintf(w, "sitewarden_classifications_total %d\n", c.classificationsTotal.Load())

		labels := snapshotKeys(&c.byLabel)
		if len(labels) > 0 {
			fmt.Fprint(w, "# HELP sitewarden_classifications_by_label_total Classifier verdicts by label.\n")
			fmt.Fprint(w, "# TYPE sitewarden_classifications_by_label_total counter\n")
			for _, l := range labels {
				ptr, _ := c.byLabel.Load(l)
				n := uint64(0)
				if ptr != nil {
					n = ptr.(*atomic.Uint64).Load()
				}
				fmt.Fprintf(w, "sitewarden_classifications_by_label_total{label=\"%s\"} %d\n", escapeLabelValue(l), n)
			}
		}

		writes := snapshotKeys(&c.chainWrites)
		if len(writes) > 0 {
			fmt.Fprint(w, "# HELP sitewarden_chain_writes_total State-changing ledger calls by method and outcome.\n")
			fmt.Fprint(w, "# TYPE sitewarden_chain_writes_total counter\n")
			for _, k := range writes {
				method, outcome, _ := strings.Cut(k, "|")
				ptr, _ := c.chainWrites.Load(k)
				n := uint64(0)
				if ptr != nil {
					n = ptr.(*atomic.Uint64).Load()
				}
				fmt.Fprintf(w, "sitewarden_chain_writes_total{method=\"%s\",outcome=\"%s\"} %d\n",
					escapeLabelValue(method), escapeLabelValue(outcome), n)
			}
		}

		fmt.Fprint(w, "# HELP sitewarden_reports_submitted_total Reports appended to the ledger.\n")
		fmt.Fprint(w, "# TYPE sitewarden_reports_submitted_total counter\n")
		fmt.Fprintf(w, "sitewarden_reports_submitted_total %d\n", c.reportsSubmitted.Load())

		fmt.Fprint(w, "# HELP sitewarden_reports_verified_total Reports adjudicated as verified.\n")
		fmt.Fprint(w, "# TYPE sitewarden_reports_verified_total counter\n")
		fmt.Fprintf(w, "sitewarden_reports_verified_total %d\n", c.reportsVerified.Load())

		fmt.Fprint(w, "# HELP sitewarden_dismissals_total Reports locally dismissed from pending views.\n")
		fmt.Fprint(w, "# TYPE sitewarden_dismissals_total counter\n")
		fmt.Fprintf(w, "sitewarden_dismissals_total %d\n", c.dismissals.Load())
	})
}

func snapshotKeys(m *sync.Map) []string {
	var out []string
	m.Range(func(k, _ any) bool {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
		return true
	})
	sort.Strings(out)
	return out
}

func escapeLabelValue(v string) string {
	// Prometheus text format label escaping for " and \ and newlines.
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\n", "\\n")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return v
}
