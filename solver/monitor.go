package solver

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/types"
)

// monitorPrefix marks additional-state keys that request a diagnostic.
// Keys have the form "monitor_<variable>_<statistic>" with statistic one of
// l1, l2, linf or mean; the result is stored back as a uniform field under
// the same key.
const monitorPrefix = "monitor_"

func isMonitorKey(name string) bool {
	return strings.HasPrefix(name, monitorPrefix)
}

// Monitor computes step analytics through the distributed reductions, so
// every replica carries identical diagnostic values.
type Monitor struct {
	log *logrus.Entry
}

func NewMonitor() *Monitor {
	return &Monitor{log: logrus.WithField("component", "monitor")}
}

func (m *Monitor) statistic(rep *comm.Replica, f *field.Field,
	stat string, halos [3]int) (float64, error) {
	switch stat {
	case "mean":
		return rep.GlobalMean(f, halos)
	case "l1":
		norms, err := rep.ComputeNorm(f, []comm.NormType{comm.L1})
		return norms[comm.L1], err
	case "l2":
		norms, err := rep.ComputeNorm(f, []comm.NormType{comm.L2})
		return norms[comm.L2], err
	case "linf":
		norms, err := rep.ComputeNorm(f, []comm.NormType{comm.LInf})
		return norms[comm.LInf], err
	}
	return 0, fmt.Errorf("unknown monitor statistic %q", stat)
}

// ComputeAnalytics fills every monitor key present in states from the
// corresponding flow variable. Unknown variables or statistics are
// configuration errors.
func (m *Monitor) ComputeAnalytics(rep *comm.Replica, states *types.State,
	halo, stepID int) error {
	halos := [3]int{halo, halo, halo}
	var requests []string
	if err := states.Range(func(name string, f *field.Field) error {
		if isMonitorKey(name) {
			requests = append(requests, name)
		}
		return nil
	}); err != nil {
		return err
	}

	for _, key := range requests {
		spec := strings.TrimPrefix(key, monitorPrefix)
		sep := strings.LastIndex(spec, "_")
		if sep <= 0 || sep == len(spec)-1 {
			return fmt.Errorf("malformed monitor key %q", key)
		}
		varName, stat := spec[:sep], spec[sep+1:]

		f, err := states.Require(varName)
		if err != nil {
			return err
		}
		v, err := m.statistic(rep, f, stat, halos)
		if err != nil {
			return err
		}

		shape := mustGet(states, key)
		states.MustSet(key, field.NewUniform(shape.Nx, shape.Ny, shape.Nz, v))
		m.log.WithFields(logrus.Fields{
			"step":  stepID,
			"key":   key,
			"value": v,
		}).Debug("analytics")
	}
	return nil
}
