package biz

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when nothing else identifies the content
const DefaultContentType = "application/octet-stream"

// MaxContentTypeLength 与 files.content_type 列宽一致
const MaxContentTypeLength = 255

// ResolveContentType picks the declared type, then the filename extension,
// then a sniff of the leading bytes. A declared octet-stream is treated as
// undeclared since multipart clients send it for anything they do not know.
// A declared type that does not fit the column is ignored as well.
func ResolveContentType(declared, filename string, head []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && len(declared) <= MaxContentTypeLength && !strings.EqualFold(declared, DefaultContentType) {
		return declared
	}

	if ext := filepath.Ext(filename); ext != "" {
		if byExt := mime.TypeByExtension(strings.ToLower(ext)); byExt != "" {
			return byExt
		}
	}

	if len(head) > 0 {
		if detected := mimetype.Detect(head); !detected.Is(DefaultContentType) {
			return detected.String()
		}
	}

	return DefaultContentType
}
