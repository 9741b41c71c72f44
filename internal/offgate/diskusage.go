package offgate

import (
	"io/fs"
	"path/filepath"
)

// storeDiskUsage returns the on-disk size of the durable store directory in
// bytes. It is best-effort: if the directory cannot be walked, ok is false.
//
// The store tracks logical entry sizes itself; this probe exists to report
// the physical footprint (LevelDB logs, compaction garbage) next to the
// logical total in quota logs.
func storeDiskUsage(path string) (bytes uint64, ok bool) {
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		bytes += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, false
	}
	return bytes, true
}
