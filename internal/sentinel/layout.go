package sentinel

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const l2ProductType = "MSIL2A"

var filenameParam = regexp.MustCompile(`filename=(.+)`)

// ProductURL is the OData resource of one product.
func ProductURL(baseURL, datasetID string) string {
	id := url.PathEscape(strings.ReplaceAll(datasetID, "'", "''"))
	return fmt.Sprintf("%s/Products('%s')", strings.TrimRight(baseURL, "/"), id)
}

// OnlineURL reports whether the product is staged.
func OnlineURL(baseURL, datasetID string) string {
	return ProductURL(baseURL, datasetID) + "/Online/$value"
}

// ValueURL streams the product, or triggers its retrieval when archived.
func ValueURL(baseURL, datasetID string) string {
	return ProductURL(baseURL, datasetID) + "/$value"
}

// DatasetDir derives the directory, relative to the download root, for a
// product title such as S2A_MSIL2A_20210913T083601_N0301_R064_T37UCS_20210913T113119.
// Level-2A products go under L2/YYYY/MM/DD; every other product type lands in the root.
func DatasetDir(title string) (string, error) {
	parts := strings.Split(title, "_")
	if len(parts) < 3 {
		return "", fmt.Errorf("%w: %q has fewer than 3 segments", ErrMalformedTitle, title)
	}
	if parts[1] != l2ProductType {
		return "", nil
	}
	date := parts[2]
	if len(date) < 8 || !isDigits(date[:8]) {
		return "", fmt.Errorf("%w: %q does not start with YYYYMMDD", ErrMalformedTitle, date)
	}
	return filepath.Join("L2", date[0:4], date[4:6], date[6:8]), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FilenameFromDisposition extracts the filename parameter of a Content-Disposition
// header and reduces it to a single path segment.
func FilenameFromDisposition(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrFilenameMissing
	}
	name := ""
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	}
	if name == "" {
		if m := filenameParam.FindStringSubmatch(header); m != nil {
			name = strings.TrimSuffix(strings.TrimPrefix(m[1], `"`), `"`)
		}
	}
	name = sanitizeFilename(name)
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrFilenameMissing, header)
	}
	return name, nil
}

func sanitizeFilename(name string) string {
	clean := strings.TrimSpace(name)
	clean = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' {
			return -1
		}
		return r
	}, clean)
	clean = strings.ReplaceAll(clean, `\`, "/")
	clean = path.Base(clean)
	switch clean {
	case ".", "..", "/":
		return ""
	}
	return clean
}

// TotalFromContentRange returns the complete length from a Content-Range header,
// or 0 when it is absent or unknown.
func TotalFromContentRange(header string) int64 {
	_, total, ok := strings.Cut(header, "/")
	if !ok {
		return 0
	}
	size, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || size < 0 {
		return 0
	}
	return size
}
