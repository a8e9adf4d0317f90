// Package bbf owns the persistent belief grid and fuses observation frames
// into it with a binary Bayes filter in log-odds space.
//
// Each cell carries the log-odds of being occupied. An occupied observation
// adds HitLogOdds, a free observation adds MissLogOdds, an unknown
// observation adds nothing. The sum is clamped to the log-odds of
// [PMin, PMax] on every update so that a saturated cell can still flip
// within a bounded number of contrary observations.
//
// Dependency rule: may depend on costmap, costvalue and frame. The Updater
// has a single writer; callers serialise Update.
package bbf
