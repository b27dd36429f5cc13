// Package fetch stages update artifacts and their detached signatures in the
// local cache directory.
//
// Cache paths are deterministic, so an interrupted run leaves files that the
// next run can reuse: if both files are present and verify for the requested
// version, nothing is downloaded. Otherwise both files are downloaded once,
// overwriting whatever was cached, and verified again. There is no retry
// loop; a failed run is retried by running the updater again.
package fetch
