// Package loader reads the legal knowledge base from disk.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"legalrag/internal/domain"
)

// Loader returns every reference document in a knowledge base.
type Loader interface {
	LoadAll(ctx context.Context) ([]domain.SourceDocument, error)
}

var _ Loader = (*DirectoryLoader)(nil)

var extensions = map[string]domain.DocumentType{
	".pdf":      domain.DocumentPDF,
	".txt":      domain.DocumentText,
	".md":       domain.DocumentMarkdown,
	".markdown": domain.DocumentMarkdown,
}

// DirectoryLoader walks a directory tree and reads PDF, text and Markdown
// files. Hidden files and directories are skipped.
type DirectoryLoader struct {
	root   string
	logger *zap.Logger
}

// NewDirectoryLoader creates a loader rooted at root.
func NewDirectoryLoader(root string, logger *zap.Logger) *DirectoryLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryLoader{root: root, logger: logger}
}

// LoadAll reads every supported file under the root in lexical order.
// Files that cannot be read are logged and skipped. If nothing could be
// loaded the error wraps domain.ErrNoDocumentsFound.
func (l *DirectoryLoader) LoadAll(ctx context.Context) ([]domain.SourceDocument, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("%w: knowledge base %s: %w", domain.ErrNoDocumentsFound, l.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: knowledge base %s is not a directory", domain.ErrInvalidConfiguration, l.root)
	}

	var docs []domain.SourceDocument
	skipped := 0
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != l.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		typ, ok := extensions[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		content, err := readFile(path, typ)
		if err != nil {
			skipped++
			l.logger.Warn("skipping unreadable document", zap.String("path", rel), zap.Error(err))
			return nil
		}
		docs = append(docs, domain.SourceDocument{
			ID:      documentID(rel),
			Path:    rel,
			Type:    typ,
			Content: content,
		})
		l.logger.Debug("document loaded",
			zap.String("path", rel),
			zap.String("type", string(typ)),
			zap.Int("bytes", len(content)),
		)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk knowledge base: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s (%d unreadable)", domain.ErrNoDocumentsFound, l.root, skipped)
	}
	l.logger.Info("knowledge base loaded", zap.Int("documents", len(docs)), zap.Int("skipped", skipped))
	return docs, nil
}

// documentID is stable for a given path relative to the knowledge-base root.
func documentID(rel string) string {
	sum := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(sum[:8])
}

// ReadDocument reads a single user document with the same extraction rules
// as the knowledge base. Unsupported extensions wrap domain.ErrInvalidArgument.
func ReadDocument(path string) (string, error) {
	typ, ok := extensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported document type %q", domain.ErrInvalidArgument, filepath.Ext(path))
	}
	return readFile(path, typ)
}

func readFile(path string, typ domain.DocumentType) (string, error) {
	if typ == domain.DocumentPDF {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return normalize(string(data)), nil
}

func readPDF(path string) (text string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat PDF: %w", err)
	}

	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("read PDF: %w", err)
	}

	var b strings.Builder
	var pageErrs []error
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			pageErrs = append(pageErrs, fmt.Errorf("page %d: %w", i, err))
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	if b.Len() == 0 && len(pageErrs) > 0 {
		return "", errors.Join(pageErrs...)
	}
	return normalize(b.String()), nil
}

// normalize returns valid UTF-8 with LF line endings. Files that are not
// UTF-8 are decoded as Windows-1252, the usual encoding of legacy statute
// exports, so chunk offsets always refer to the text that is indexed.
func normalize(s string) string {
	if !utf8.ValidString(s) {
		decoded, err := charmap.Windows1252.NewDecoder().String(s)
		if err != nil {
			decoded = strings.ToValidUTF8(s, string(utf8.RuneError))
		}
		s = decoded
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
