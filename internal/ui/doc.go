// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// Two views:
//  1. [ListView] : recently played tracks, filterable
//  2. [DetailView] : one track with its most recent plays
//
// The [Model] loads data through a [services.HistoryService]; callers pass one that renews
// credentials on a rejected token so the views never deal with authentication.
//
// Keys: j/k to move, enter for details, esc to go back, r to reload, q to quit.
package ui
