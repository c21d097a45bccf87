package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

// fetchCounterValue returns the counter sample whose labels include every
// name/value pair in labels.
func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	metric, err := findMetric(mfs, name, labels...)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func findMetric(mfs []*dto.MetricFamily, name string, labels ...string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if hasLabels(metric.GetLabel(), labels) {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series with labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func hasLabels(pairs []*dto.LabelPair, labels []string) bool {
	want := map[string]string{}
	for i := 0; i+1 < len(labels); i += 2 {
		want[labels[i]] = labels[i+1]
	}
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
