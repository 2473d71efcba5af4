// Package distance provides the vector distance functions used by the
// similarity indexes.
//
// Every metric is expressed as a distance: lower is closer.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance
//   - MetricCosine: 1 - cosine similarity (zero vectors are at distance 1)
//   - MetricDot: Negated dot product
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricCosine)
//	d := fn(a, b)
package distance
