// Package testutil provides testing utilities for reviewdb.
//
// This package is intended for use in tests only. It provides seeded
// random vector generators, exact ground truth search, recall computation
// and a scripted encoder whose outputs tests can choose.
//
//	rng := testutil.NewRNG(seed)
//	data := rng.UnitVectors(1000, 64)
//	truth := testutil.BruteForceSearch(data, query, 10, distance.CosineDistance)
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
