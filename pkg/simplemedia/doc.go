// Package simplemedia provides the content lifecycle engine of a multi-tenant
// media service: ingestion of uploaded files into a blob store with persisted
// progress, per-space quota accounting, AI variant fan-out, HLS transcoding of
// stored videos and lazy refresh of time-limited delivery links.
//
// The Service interface is assembled from pluggable collaborators through
// functional options. Implementations of record stores (memory, Postgres),
// space ledgers (memory, Postgres, Redis), blob stores (memory, filesystem,
// S3, MinIO), link signers, variant generators and the transcode worker live
// in subpackages.
//
// # Ingestion Protocol
//
// Every ingestion runs in three phases. A pending shell item is persisted
// first, so it owns an id before any bytes move. Bytes are then streamed to
// the blob store and progress is reported through the shell only. Finally the
// item is marked complete and the owning space is charged exactly once.
// Failures leave the item in place with UploadError set so partial state stays
// inspectable.
package simplemedia
