// Package poller implements the Bar Poller component.
//
// The Bar Poller:
//   - Fetches recent bars over REST on a fixed interval
//   - Resumes each symbol from the last bar it stored, overlapping by one timeframe
//   - Uses concurrent requests with bounded parallelism
//   - Upserts through the market data orchestrator, so overlaps update in place
package poller
