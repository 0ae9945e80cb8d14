package tokenstore

import (
	"fmt"
	"os"
	"time"
)

const (
	lockRetries    = 50
	lockRetryDelay = 100 * time.Millisecond
	lockStaleAfter = 30 * time.Second
)

// fileLock coordinates session-file access across processes via a sibling
// lock file created with O_EXCL.
type fileLock struct {
	file *os.File
	path string
}

func acquireFileLock(target string) (*fileLock, error) {
	lockPath := target + ".lock"
	for i := 0; i < lockRetries; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{file: f, path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		// Held by someone else. Break stale locks left by crashed processes.
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf("remove stale lock %s: %w", lockPath, remErr)
			}
			continue
		}
		time.Sleep(lockRetryDelay)
	}
	return nil, fmt.Errorf("timeout waiting for lock %s", lockPath)
}

func (l *fileLock) release() error {
	if l.file != nil {
		_ = l.file.Close()
	}
	return os.Remove(l.path)
}
