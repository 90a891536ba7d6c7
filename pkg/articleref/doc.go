// Package articleref provides a reusable library for managing reference
// files attached to articles, with pluggable attachment repositories and
// blob storage backends.
//
// It exposes a single Service interface that orchestrates the upload
// pipeline (validation, filename normalization, streamed writes), the
// download/access pipeline (stable public URLs, signed URLs or proxied
// streams for private objects) and the attachment lifecycle (create,
// reorder, update, delete). Implementations of repositories (memory,
// Postgres) and blob stores (memory, filesystem, S3) are provided under
// subpackages.
//
// Visibility Strategy
//
// Every stored object is written into the backend bound to its visibility
// tier. Public objects are directly linkable below a configured base URL;
// private objects are reached through a time-limited signed URL or, when
// the backend cannot mint one, streamed through the service. Visibility is
// fixed at write time: changing it means writing a new object and deleting
// the old one.
package articleref
