package exporter

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/caiwatch/caiwatch/pkg/types"
)

// Metric names.
const (
	metricUp            = "caiwatch_up"
	metricCAI           = "caiwatch_cai"
	metricLevel         = "caiwatch_level"
	metricBadPollutants = "caiwatch_bad_pollutants"
	metricSubIndex      = "caiwatch_sub_index"
	metricConcentration = "caiwatch_concentration"
	metricTimestamp     = "caiwatch_snapshot_timestamp_seconds"
)

const stateUnknown = "unknown"

// family accumulates gauge samples for one metric name.
type family struct {
	name, help string
	metrics    []*dto.Metric
}

func (f *family) add(v float64, labels ...string) {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	f.metrics = append(f.metrics, m)
}

func (f *family) toProto() *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(f.name),
		Help:   proto.String(f.help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: f.metrics,
	}
}

// Families converts snaps into gauge metric families. Families with no
// samples are omitted. Unknown snapshots only contribute caiwatch_up 0.
func Families(snaps []*types.Snapshot) []*dto.MetricFamily {
	up := &family{name: metricUp, help: "Whether the latest CAI evaluation succeeded (1) or not (0)."}
	cai := &family{name: metricCAI, help: "Comprehensive Air-quality Index."}
	level := &family{name: metricLevel, help: "CAI level: 0 good, 1 fair, 2 norm, 3 poor."}
	bad := &family{name: metricBadPollutants, help: "Number of pollutants at level norm or worse."}
	sub := &family{name: metricSubIndex, help: "Per-pollutant CAI sub-index score."}
	conc := &family{name: metricConcentration, help: "Per-pollutant concentration fed to the sub-index, in ppm for gases and ug/m3 for particulates."}
	ts := &family{name: metricTimestamp, help: "Unix time of the hour the snapshot describes."}

	for _, s := range snaps {
		loc := s.LocationID
		if s.State == stateUnknown {
			up.add(0, "location", loc)
			continue
		}
		up.add(1, "location", loc)
		cai.add(s.CAI, "location", loc)
		level.add(float64(s.Level), "location", loc)
		bad.add(float64(s.BadPollutants), "location", loc)
		ts.add(float64(s.Timestamp.Unix()), "location", loc)
		for _, si := range s.SubIndices {
			sub.add(si.Score, "location", loc, "pollutant", si.Pollutant)
			conc.add(si.Concentration, "location", loc, "pollutant", si.Pollutant)
		}
	}

	var out []*dto.MetricFamily
	for _, f := range []*family{up, cai, level, bad, sub, conc, ts} {
		if len(f.metrics) > 0 {
			out = append(out, f.toProto())
		}
	}
	return out
}

// Write renders snaps in the text exposition format.
func Write(w io.Writer, snaps []*types.Snapshot) error {
	for _, mf := range Families(snaps) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("exporter: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile atomically replaces path with the exposition of snaps, for
// node_exporter's textfile collector.
func WriteTextfile(path string, snaps []*types.Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("exporter: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("exporter: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := Write(tmp, snaps); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("exporter: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("exporter: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("exporter: rename: %w", err)
	}
	return nil
}

// Handler serves the exposition of the snapshots returned by source.
func Handler(source func() []*types.Snapshot) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := Write(w, source()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
