// Package domain holds the core types shared by the sync and export
// orchestrators: file events, remote export records, activity history, and
// the sentinel errors checked across package boundaries.
package domain
