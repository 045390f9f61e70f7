// Package extract is the extraction capability consumed by the staging
// manager: it turns a distribution archive into an ExtractedFileSet on disk.
//
// # Archive Layout
//
// An ArchiveStore looks for archives named
//
//	<archive dir>/<name>-<version>-<platform>.tar.gz
//
// next to optional verification files:
//
//   - <archive>.asc or <archive>.sig: detached OpenPGP signature, checked
//     against the configured armored keyring (preferred)
//   - <archive>.sha256: "<hex digest>  <file name>" checksum line (fallback)
//
// Archives are never extracted without successful verification unless the
// store is explicitly configured to allow unverified archives.
//
// # Classification
//
// Every regular file extracted is recorded under one FileType: the
// configured executable path becomes the Executable; shared objects and
// anything under lib/ are Library; conf-like files and anything under etc/
// are Config; the rest is Support.
package extract
