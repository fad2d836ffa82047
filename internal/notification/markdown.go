package notification

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Raw HTML in plan names is dropped by the default renderer.
var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))
