// Package storage persists the little state that must survive a restart:
// the daily quota spend per day and an archive of finished sessions.
package storage
