package downloader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// moveFile renames a file, falling back to copy+delete for cross-device
// moves (work_dir and download_dir may live on different filesystems).
func moveFile(source, target string) error {
	renameErr := os.Rename(source, target)
	if renameErr == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(renameErr, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(source, target); err != nil {
			return err
		}
		return os.Remove(source)
	}

	return renameErr
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(target)
		return fmt.Errorf("copy contents: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return fmt.Errorf("flush target: %w", err)
	}
	return nil
}
