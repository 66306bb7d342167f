// Package javascript reads Node.js dependency files.
//
// Supported files:
//
//   - package.json (dependencies, devDependencies, peerDependencies,
//     optionalDependencies, scripts, engines)
//   - package-lock.json and npm-shrinkwrap.json (lockfile v1 to v3)
//   - pnpm-lock.yaml (lockfile v5 to v9)
//   - yarn.lock (classic and berry)
//
// Usage:
//
//	eco, errs := deps.Scan(repo, "web", javascript.Language, "pnpm")
//
// [deps.Language]: github.com/matzehuels/evidencepack/pkg/deps.Language
package javascript
