// Package download retrieves batches of URLs with a fixed number of
// transfers in flight.
//
// A Coordinator claims a unique destination name for every URL, then
// runs one task per URL. A task waits for a Limiter permit, opens the
// URL through a Transport, streams the body into a Sink in ChunkSize
// reads and commits it. Data only becomes visible at the destination
// on Commit, so a failed or cancelled task never leaves a partial file
// behind.
//
// Failures are classified by Kind. Config and directory errors end
// the run before any transfer starts and are returned from Run.
// Transport, IO and cancellation errors are reported per URL in the
// returned Outcomes.
//
// Destinations are local directories by default. A Params.Dir with a
// URL scheme (mem://, file://, s3://, ...) is opened as a gocloud.dev
// blob bucket.
package download
