// Package crawl walks a network's CDP neighbor graph from a seed device.
//
// State is the single authority over which devices are known, queued, in
// progress, done or failed. Its operations are atomic, so concurrent workers
// that discover the same neighbor produce one queue entry. Engine runs a
// fixed pool of workers over it: each connects through Strategy, describes
// the device, parses its neighbor table and feeds in-scope neighbors back
// into State. Reporter samples State on an interval for progress logging.
package crawl
