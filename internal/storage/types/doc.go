// Package types defines the core data types used throughout the counter storage.
//
// Key types:
//   - Field: one of the twelve mode x direction counter columns
//   - Counts: a fixed array of counters indexed by Field
//   - Kind: bucket kind (Hour, Day, Week, Month, Year)
package types
