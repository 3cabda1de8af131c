// Package sessions holds the server-side session table shared by every
// transport. A session records the transport a client arrived on, the
// protocol version and capabilities it negotiated during initialize, a small
// state bag (permissions and the like) and request bookkeeping used for the
// per-minute rate check.
//
// Lifecycle
//
//	none -> created (initialize) -> active (requests) -> expired -> removed
//
// Expiry is only observed by Sweep, which the host process runs periodically
// through RunSweeper. An expired session that has not been swept yet still
// accepts requests.
//
// Rate limiting uses a sliding one-minute window per session: a request is
// rejected when the session already had the configured number of accepted
// requests in the trailing minute.
package sessions
