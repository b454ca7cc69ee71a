package storage

import (
	"bufio"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is the number of leading bytes inspected to detect a MIME type.
const sniffLen = 3072

// allowedTypes lists the document formats accepted for upload.
var allowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/zip",
	"text/plain",
	"text/csv",
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// Allowed reports whether mime is an accepted upload type. Parameters such
// as charset are ignored.
func Allowed(mime string) bool {
	base, _, _ := strings.Cut(mime, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	for _, t := range allowedTypes {
		if base == t {
			return true
		}
	}
	return false
}

// Sniff detects the MIME type of r from its leading bytes and returns a reader
// that still yields the complete content.
func Sniff(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, nil, err
	}
	return mimetype.Detect(head), br, nil
}

// BaseType strips parameters from a detected MIME string.
func BaseType(m *mimetype.MIME) string {
	base, _, _ := strings.Cut(m.String(), ";")
	return strings.TrimSpace(base)
}
