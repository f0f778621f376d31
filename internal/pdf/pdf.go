package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	rscpdf "rsc.io/pdf"
)

// ExtractText returns the text of every page of the PDF at path.
// rsc.io/pdf panics on some malformed files, so panics are turned into errors.
func ExtractText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf %s: %v", path, r)
		}
	}()

	r, err := rscpdf.Open(path)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, t := range p.Content().Text {
			sb.WriteString(strings.ReplaceAll(t.S, "\x00", ""))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// ReadDocument extracts text from .pdf files and reads .txt/.md files as is.
func ReadDocument(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return ExtractText(path)
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported document type %q", filepath.Ext(path))
	}
}

// Sanitize collapses all whitespace runs to single spaces.
func Sanitize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ChunkByWords splits text into windows of size words, each overlapping the
// previous one by overlap words.
func ChunkByWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if size <= 0 {
		size = 200
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var out []string
	for i := 0; i < len(words); i += size - overlap {
		end := min(i+size, len(words))
		out = append(out, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}
