package extractor

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// Visibility keywords recognized as bare statements in a class or module body
const (
	VisibilityPublic    = "public"
	VisibilityPrivate   = "private"
	VisibilityProtected = "protected"
)

// Extractor turns Ruby source into an ordered list of chunks: one per class,
// module, method, and constant, with nesting context preserved. Extraction is
// pure per file; an Extractor may be shared across goroutines.
type Extractor struct{}

// New creates a new Extractor instance
func New() *Extractor {
	return &Extractor{}
}

// Extract parses the already-decoded source and emits its chunks in source
// order. Unparsable source returns a *types.ParseError; blank source returns
// no chunks. A non-blank file with no extractable structure yields a single
// whole-file chunk.
func (e *Extractor) Extract(ctx context.Context, filePath, source string) ([]*types.Chunk, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	// tree-sitter parsers are not safe for concurrent use, so each call gets
	// its own. Parser construction is cheap relative to parsing.
	parser := sitter.NewParser()
	parser.SetLanguage(ruby.GetLanguage())

	src := []byte(source)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &types.ParseError{Path: filePath, Detail: err.Error()}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &types.ParseError{Path: filePath, Detail: "syntax error"}
	}

	w := &walker{
		filePath: filePath,
		src:      src,
		lines:    strings.Split(source, "\n"),
	}
	w.walkBody(root, nil, false)

	if len(w.chunks) == 0 {
		return []*types.Chunk{w.fileChunk()}, nil
	}

	return w.chunks, nil
}

// walker accumulates chunks during a single depth-first pass. The context
// path is passed by value down the recursion, never mutated in place, so one
// walker never leaks state between sibling subtrees.
type walker struct {
	filePath string
	src      []byte
	lines    []string
	chunks   []*types.Chunk
}

// walkBody visits the named children of a program or body_statement node.
// Visibility is forward traversal state: it starts public in every body and
// changes when a bare public/private/protected statement is visited.
func (w *walker) walkBody(body *sitter.Node, ctxPath []string, classMethods bool) {
	if body == nil {
		return
	}

	visibility := VisibilityPublic

	for i := 0; i < int(body.NamedChildCount()); i++ {
		node := body.NamedChild(i)

		switch node.Type() {
		case "class":
			w.extractContainer(node, ctxPath, types.ChunkClass)
		case "module":
			w.extractContainer(node, ctxPath, types.ChunkModule)
		case "singleton_class":
			// class << self: no chunk of its own, but everything defined
			// inside is a class method
			w.walkBody(node.ChildByFieldName("body"), ctxPath, true)
		case "method":
			w.extractMethod(node, ctxPath, visibility, classMethods)
		case "singleton_method":
			w.extractMethod(node, ctxPath, visibility, true)
		case "assignment":
			w.extractConstant(node, ctxPath)
		case "identifier":
			switch kw := node.Content(w.src); kw {
			case VisibilityPublic, VisibilityPrivate, VisibilityProtected:
				visibility = kw
			}
		}
	}
}

// extractContainer emits a class or module chunk and recurses into its body.
// The emitted context is the ancestor path before this container's own label
// is pushed.
func (w *walker) extractContainer(node *sitter.Node, ctxPath []string, chunkType types.ChunkType) {
	name := w.resolveName(node.ChildByFieldName("name"))
	if name == "" {
		// Dynamically computed name: no search value, skip the subtree
		return
	}

	chunk := w.newChunk(node, chunkType, name, ctxPath)
	if chunkType == types.ChunkClass {
		if sup := node.ChildByFieldName("superclass"); sup != nil && sup.NamedChildCount() > 0 {
			chunk.Metadata.Superclass = sup.NamedChild(0).Content(w.src)
		}
	}
	w.chunks = append(w.chunks, chunk)

	label := string(chunkType) + " " + name
	childPath := make([]string, 0, len(ctxPath)+1)
	childPath = append(childPath, ctxPath...)
	childPath = append(childPath, label)

	w.walkBody(node.ChildByFieldName("body"), childPath, false)
}

// extractMethod emits a method chunk. Parameters keep each argument's source
// notation verbatim (defaults, splats, keywords, block args).
func (w *walker) extractMethod(node *sitter.Node, ctxPath []string, visibility string, classMethod bool) {
	name := w.resolveName(node.ChildByFieldName("name"))
	if name == "" {
		return
	}

	chunk := w.newChunk(node, types.ChunkMethod, name, ctxPath)
	chunk.Metadata.Visibility = visibility
	chunk.Metadata.ClassMethod = classMethod
	chunk.Metadata.Parameters = w.parameters(node.ChildByFieldName("parameters"))
	w.chunks = append(w.chunks, chunk)
}

// extractConstant emits a constant chunk for assignments whose left side is a
// constant. Any other assignment is ignored.
func (w *walker) extractConstant(node *sitter.Node, ctxPath []string) {
	left := node.ChildByFieldName("left")
	if left == nil || left.Type() != "constant" {
		return
	}

	name := left.Content(w.src)
	w.chunks = append(w.chunks, w.newChunk(node, types.ChunkConstant, name, ctxPath))
}

// newChunk builds the common chunk envelope for a node: id, verbatim code
// lines, joined context, preceding comments, and large-chunk tagging.
func (w *walker) newChunk(node *sitter.Node, chunkType types.ChunkType, name string, ctxPath []string) *types.Chunk {
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	chunk := &types.Chunk{
		ID:        types.NewChunkID(w.filePath, chunkType, name, startLine),
		FilePath:  w.filePath,
		Type:      chunkType,
		Name:      name,
		Code:      strings.Join(w.lines[startLine-1:endLine], "\n"),
		Context:   strings.Join(ctxPath, " > "),
		StartLine: startLine,
		EndLine:   endLine,
		Comments:  w.precedingComments(startLine),
	}

	if lc := chunk.LineCount(); lc > types.LargeChunkThreshold {
		chunk.Metadata.LargeChunk = true
		chunk.Metadata.LineCount = lc
	}

	return chunk
}

// fileChunk builds the whole-file fallback chunk for sources where the
// traversal found no structure (top-level scripts, comment-only files)
func (w *walker) fileChunk() *types.Chunk {
	name := filepath.Base(w.filePath)

	endLine := len(w.lines)
	if endLine > 1 && w.lines[endLine-1] == "" {
		endLine-- // trailing newline
	}

	chunk := &types.Chunk{
		ID:        types.NewChunkID(w.filePath, types.ChunkFile, name, 1),
		FilePath:  w.filePath,
		Type:      types.ChunkFile,
		Name:      name,
		Code:      strings.Join(w.lines[:endLine], "\n"),
		StartLine: 1,
		EndLine:   endLine,
		Metadata:  types.Metadata{TopLevel: true},
	}

	if lc := chunk.LineCount(); lc > types.LargeChunkThreshold {
		chunk.Metadata.LargeChunk = true
		chunk.Metadata.LineCount = lc
	}

	return chunk
}

// resolveName returns the concrete identifier for a name node, or "" when the
// name cannot be resolved statically
func (w *walker) resolveName(node *sitter.Node) string {
	if node == nil {
		return ""
	}

	switch node.Type() {
	case "constant", "identifier", "operator", "setter", "scope_resolution":
		return node.Content(w.src)
	default:
		return ""
	}
}

// parameters returns the verbatim text of each method parameter
func (w *walker) parameters(params *sitter.Node) []string {
	if params == nil || params.NamedChildCount() == 0 {
		return nil
	}

	out := make([]string, 0, params.NamedChildCount())
	for i := 0; i < int(params.NamedChildCount()); i++ {
		out = append(out, params.NamedChild(i).Content(w.src))
	}
	return out
}

// precedingComments collects the contiguous #-comment block immediately above
// startLine, stopping at the first blank or non-comment line
func (w *walker) precedingComments(startLine int) string {
	var collected []string

	for i := startLine - 2; i >= 0; i-- {
		line := strings.TrimSpace(w.lines[i])
		if !strings.HasPrefix(line, "#") {
			break
		}
		collected = append(collected, line)
	}

	if len(collected) == 0 {
		return ""
	}

	// Collected bottom-up; restore source order
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	return strings.Join(collected, "\n")
}
