// Package fs provides the filesystem abstraction heap dump files are written
// through, plus fault injection for tests.
//
//   - [FileSystem]: the operations a dump file needs (open, rename, remove, mkdir)
//   - [LocalFS]: the os-backed implementation, [Default]
//   - [FaultyFS]: wraps a FileSystem and fails writes, syncs or closes on demand
//
// Tests inject [FaultyFS] to check that a failed dump never replaces a good one:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailOnSync: true})
package fs
