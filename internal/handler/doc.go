// Package handler implements the read-only HTTP status API of a running crawl.
//
// Routes:
//
//	GET /api/devices           every known device, optionally ?status=done
//	GET /api/devices/{key}     one device
//	GET /api/progress          current progress sample
//	GET /events                crawl events as Server-Sent Events
//
// Errors are returned as JSON with an {error, details} body.
package handler
