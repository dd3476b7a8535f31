package report

import (
	"fmt"
	"io"
	"math"
	"sync"
	"text/tabwriter"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
)

// AnchorStats are live statistics of the angles one anchor reports for
// the tracked tag.
type AnchorStats struct {
	AnchorID      string  `json:"anchor_id"`
	Count         int     `json:"count"`
	LastAzimuth   int     `json:"last_azimuth"`
	LastElevation int     `json:"last_elevation"`
	MeanAzimuth   float64 `json:"mean_azimuth"`
	MeanElevation float64 `json:"mean_elevation"`
	StdAzimuth    float64 `json:"std_azimuth"`
	StdElevation  float64 `json:"std_elevation"`
}

type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(v float64) {
	w.n++
	d := v - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (v - w.mean)
}

func (w *welford) std() float64 {
	if w.n == 0 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n))
}

type anchorState struct {
	az, el         welford
	lastAz, lastEl int
}

// Running keeps per anchor statistics of live reports. When a tag filter
// is set only that tag is counted; otherwise every tag is.
type Running struct {
	filter string

	mu      sync.Mutex
	tracked string
	order   []string
	anchors map[string]*anchorState
}

// NewRunning returns running statistics, optionally limited to tagID.
func NewRunning(tagID string) *Running {
	return &Running{filter: tagID, anchors: make(map[string]*anchorState)}
}

// Add counts s and reports whether it passed the tag filter.
func (r *Running) Add(s aoa.AngleSample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tracked == "" {
		r.tracked = s.EmitterID
	}
	if r.filter != "" && s.EmitterID != r.filter {
		return false
	}
	st, ok := r.anchors[s.AnchorID]
	if !ok {
		st = &anchorState{}
		r.anchors[s.AnchorID] = st
		r.order = append(r.order, s.AnchorID)
	}
	st.az.add(float64(s.Azimuth))
	st.el.add(float64(s.Elevation))
	st.lastAz, st.lastEl = s.Azimuth, s.Elevation
	return true
}

// Tracked is the tag being followed: the filter if set, else the first
// tag seen.
func (r *Running) Tracked() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filter != "" {
		return r.filter
	}
	return r.tracked
}

// Snapshot returns the statistics of every anchor in first-seen order.
func (r *Running) Snapshot() []AnchorStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AnchorStats, 0, len(r.order))
	for _, id := range r.order {
		st := r.anchors[id]
		out = append(out, AnchorStats{
			AnchorID:      id,
			Count:         st.az.n,
			LastAzimuth:   st.lastAz,
			LastElevation: st.lastEl,
			MeanAzimuth:   st.az.mean,
			MeanElevation: st.el.mean,
			StdAzimuth:    st.az.std(),
			StdElevation:  st.el.std(),
		})
	}
	return out
}

// WriteTable prints the snapshot as a table.
func (r *Running) WriteTable(w io.Writer) error {
	fmt.Fprintf(w, "Tracked tag: %s\n", r.Tracked())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ANCHOR\tN\tAZ\tEL\tAZ MEAN\tAZ STD\tEL MEAN\tEL STD\t")
	for _, a := range r.Snapshot() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t\n",
			a.AnchorID, a.Count, a.LastAzimuth, a.LastElevation,
			a.MeanAzimuth, a.StdAzimuth, a.MeanElevation, a.StdElevation)
	}
	return tw.Flush()
}
