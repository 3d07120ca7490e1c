// Package location resolves where and when the node is.
//
// A Site carries the node's coordinates and time zone. It computes the
// local sunrise and sunset for a date and renders them as the "sunrise"
// and "sunset" schedule keywords.
//
// The solar calculation is the NOAA almanac approximation with the
// official zenith of 90°50', accurate to a minute or two away from the
// poles. Above the polar circles the sun may not rise or set on a given
// date; SunTimes then returns ErrSunNeverRises or ErrSunNeverSets.
package location
