// Package all registers every source format reader.
package all

import (
	_ "github.com/plotsync/plotsync/internal/reader/markdown"
	_ "github.com/plotsync/plotsync/internal/reader/projectxml"
	_ "github.com/plotsync/plotsync/internal/reader/toolexport"
	_ "github.com/plotsync/plotsync/internal/reader/vault"
)
