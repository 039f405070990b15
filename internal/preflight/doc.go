// Package preflight provides readiness checks for the directories, binary,
// and camera the recorder depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll once at startup and logs every result. A failed
//     check is a warning: the supervisor keeps retrying, so a camera that
//     comes back later still gets recorded.
//   - The CLI "tapedeck status" command shows the same results when the
//     daemon is offline.
package preflight
