package articleref

import (
	"bufio"
	"io"
	"net/http"
)

const (
	// MimeOctetStream is the fallback when detection yields nothing.
	MimeOctetStream = "application/octet-stream"

	// http.DetectContentType examines at most 512 bytes.
	mimeDetectionBytes = 512
)

// DetectMimeType sniffs the MIME type from the leading bytes of r and
// returns a replacement reader that replays them, so the full stream can
// still be copied to a backend without rewinding.
func DetectMimeType(r io.Reader) (string, io.Reader) {
	br := bufio.NewReaderSize(r, mimeDetectionBytes)
	head, err := br.Peek(mimeDetectionBytes)
	if err != nil && len(head) == 0 {
		return MimeOctetStream, br
	}
	return http.DetectContentType(head), br
}
