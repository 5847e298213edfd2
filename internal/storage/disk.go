package storage

import (
	"os"
)

// SizeBytes returns the on-disk size of the database including its WAL and shared-memory files.
func (s *SQLiteStorage) SizeBytes() (int64, error) {
	return DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
}

// DiskUsageBytes returns the total size in bytes of the given files.
// Missing paths are skipped; other stat errors are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
		}
	}
	return total, nil
}
