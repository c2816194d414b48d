// Package ui implements an interactive terminal monitor using bubbletea's Elm architecture.
//
// The monitor has three views:
//  1. [ListView] : Browse migration operations, optionally including archived ones
//  2. [DetailView] : Invitation and join progress, counts and the recent log of one operation
//  3. [ConfirmView] : Confirm closing an operation as completed
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Data is re-read from the [Source] on a ticker. When the monitor runs in the same process as the engine,
// progress updates also arrive through a channel and trigger an immediate refresh.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
