package kvengine

import (
	"fmt"
	"path/filepath"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

// Open constructs the Adapter selected by backend ("bolt" or "badger")
// for one region, rooted at dataDir.
func Open(backend, dataDir string, regionID uint64) (Adapter, error) {
	switch backend {
	case "bolt":
		return NewBoltAdapter(dataDir, regionID)
	case "badger":
		return NewBadgerAdapter(filepath.Join(dataDir, fmt.Sprintf("%d", regionID)))
	default:
		return nil, dingoerr.New(dingoerr.IllegalParameter, "unknown engine backend %q", backend)
	}
}
