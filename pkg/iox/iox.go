package iox

import (
	"io"
	"os"
)

// WriteStreamToFile copies src into dstFilename, and returns the number of bytes written.
// The data is first written to dstFilename + ".partial", and renamed once complete,
// so dstFilename never holds a truncated file.
func WriteStreamToFile(dstFilename string, src io.Reader) (int64, error) {
	tmp := dstFilename + ".partial"
	dstFile, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dstFile, src)
	if closeErr := dstFile.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, dstFilename)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return n, nil
}
