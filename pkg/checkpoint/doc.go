// Package checkpoint saves and resumes search progress.
//
// A checkpoint records the next-page token of an interrupted search plus the
// requests and items it already used, so a later run can pick up from that
// page instead of starting over. Checkpoints are keyed by a hash of the
// endpoint and base payload and stored in platform-specific data
// directories:
//   - Linux: $XDG_DATA_HOME/searchtweets/checkpoints/ (default ~/.local/share)
//   - macOS: ~/Library/Application Support/searchtweets/checkpoints/
//   - Windows: %APPDATA%/searchtweets/checkpoints/
//
// Files are written atomically and carry a version for future migrations.
package checkpoint
