package prometheusmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func preloadLabelValues(m *Metrics) {
	var (
		adapterValues        = adaptersAsString()
		bidSourceValues      = bidSourcesAsString()
		bidTypeValues        = bidTypesAsString()
		cacheResultValues    = cacheResultsAsString()
		markupDeliveryValues = []string{markupDeliveryAdm, markupDeliveryNurl}
		requestStatusValues  = requestStatusesAsString()
		storedErrorValues    = storedDataErrorsAsString()
		storedResponseValues = storedResponseTypesAsString()
	)

	preloadLabelValuesForCounter(m.requests, map[string][]string{
		requestStatusLabel: requestStatusValues,
	})

	preloadLabelValuesForCounter(m.storedResponses, map[string][]string{
		storedResponseLabel: storedResponseValues,
	})

	preloadLabelValuesForCounter(m.storedResponseCacheResult, map[string][]string{
		cacheResultLabel: cacheResultValues,
	})

	preloadLabelValuesForCounter(m.storedResponseErrors, map[string][]string{
		storedDataErrorLabel: storedErrorValues,
	})

	preloadLabelValuesForCounter(m.adapterBids, map[string][]string{
		adapterLabel:        adapterValues,
		bidSourceLabel:      bidSourceValues,
		bidTypeLabel:        bidTypeValues,
		markupDeliveryLabel: markupDeliveryValues,
	})
}

func preloadLabelValuesForCounter(counter *prometheus.CounterVec, labelsWithValues map[string][]string) {
	registerLabelPermutations(labelsWithValues, func(labels prometheus.Labels) {
		counter.With(labels)
	})
}

func registerLabelPermutations(labelsWithValues map[string][]string, register func(prometheus.Labels)) {
	if len(labelsWithValues) == 0 {
		return
	}

	keys := make([]string, 0, len(labelsWithValues))
	values := make([][]string, 0, len(labelsWithValues))
	for k, v := range labelsWithValues {
		keys = append(keys, k)
		values = append(values, v)
	}

	labels := prometheus.Labels{}
	registerLabelPermutationsRecursive(0, keys, values, labels, register)
}

func registerLabelPermutationsRecursive(depth int, keys []string, values [][]string, labels prometheus.Labels, register func(prometheus.Labels)) {
	label := keys[depth]
	isLeaf := depth == len(keys)-1

	if isLeaf {
		for _, v := range values[depth] {
			labels[label] = v
			register(cloneLabels(labels))
		}
	} else {
		for _, v := range values[depth] {
			labels[label] = v
			registerLabelPermutationsRecursive(depth+1, keys, values, labels, register)
		}
	}
}

func cloneLabels(labels prometheus.Labels) prometheus.Labels {
	clone := prometheus.Labels{}
	for k, v := range labels {
		clone[k] = v
	}
	return clone
}
