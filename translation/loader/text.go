package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextLoader 原样读取纯文本与 Markdown 文件
type TextLoader struct{}

// NewTextLoader creates a TextLoader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads the file and strips a UTF-8 BOM.
func (l *TextLoader) Load(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("text loader: %w", err)
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

// SupportedTypes returns the extensions handled by TextLoader.
func (l *TextLoader) SupportedTypes() []string {
	return []string{".txt", ".md", ".markdown"}
}
