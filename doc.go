// Package reviewdb is an embedded, append-only store for product reviews
// that finds reviews by meaning.
//
// Every review is turned into a fixed-dimension vector by an Encoder and
// stored as a positionally correlated pair: the vector in a binary vector
// log, the review itself as one JSON line in a metadata log. The position
// (ordinal) is the join key. A similarity index over the vectors answers
// nearest neighbour queries, and the matching reviews are resolved through
// the metadata log.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := reviewdb.Open(ctx, "./data", encoder.NewHashing(1024))
//	defer db.Close()
//
//	ord, _ := db.Insert(ctx, model.Record{
//	    Title: "Great phone", Body: "Battery lasts two days",
//	    ProductID: "P-1", Rating: 5,
//	})
//
//	res, _ := db.Search(ctx, "battery life", 5)
//	for _, r := range res.Hits {
//	    fmt.Println(r.Ordinal, r.Distance, r.Record.Title)
//	}
//
// # Files
//
// The data directory holds reviews.index (vector log) and reviews.jsonl
// (metadata log). For every ordinal below Count, the vector is the
// embedding of the review on the same position. The invariant holds under
// concurrent writers and across crashes: a pair whose second half failed is
// rolled back, and Open trims both logs to their common length.
//
// # Consistency
//
// Writers are serialised by one lock spanning both logs. Readers observe a
// committed count that only advances once both halves are written and
// indexed, so a search never returns a vector whose review is not readable.
//
// # Encoders and Indexes
//
// Encoders: encoder.Hashing (local), encoder.OpenAI (remote) or any function
// via encoder.FromFunc. Indexes: flat (exact, default) and hnsw
// (approximate), selected with WithIndex.
//
// # Snapshots
//
// Backup streams a consistent prefix of both logs, compressed, into a
// blobstore.Store (local directory, memory, S3 or MinIO); snapshot.Restore
// materialises it again.
package reviewdb
