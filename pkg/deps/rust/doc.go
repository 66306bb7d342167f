// Package rust reads Cargo dependency files.
//
// Cargo.toml lists direct dependencies in [dependencies],
// [dev-dependencies] and [build-dependencies]. Cargo.lock pins the full
// closure and is reported as the lockfile.
//
//	eco, errs := deps.Scan(repo, ".", rust.Language, "cargo")
package rust
