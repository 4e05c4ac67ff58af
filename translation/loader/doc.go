// Package loader reads source documents into plain text for translation.
//
// Supported formats out of the box:
//   - Plain text and Markdown (.txt, .md, .markdown)
//   - HTML (.html, .htm), rendered to Markdown
//   - PDF (.pdf), text layer only
//   - Word (.docx)
//
// Registry routes by file extension and reports missing files and unknown
// extensions as typed errors (types.ErrFileNotFound / types.ErrUnsupportedFormat):
//
//	registry := loader.NewRegistry()
//	text, err := registry.Load(ctx, "/path/to/paper.pdf")
package loader
