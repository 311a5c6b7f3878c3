package assemble

import (
	"path/filepath"
	"strings"
)

// Category is the closed set of content categories the compression stage
// dispatches on
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryDocument Category = "document"
)

// classification table; anything not listed is a document
var categoryByExt = map[string]Category{
	".jpg":  CategoryImage,
	".jpeg": CategoryImage,
	".png":  CategoryImage,
	".gif":  CategoryImage,
	".bmp":  CategoryImage,
	".webp": CategoryImage,

	".mp4":  CategoryVideo,
	".mov":  CategoryVideo,
	".avi":  CategoryVideo,
	".mkv":  CategoryVideo,
	".webm": CategoryVideo,
	".flv":  CategoryVideo,
}

// Classify maps a filename to its content category by extension
func Classify(filename string) Category {
	ext := strings.ToLower(filepath.Ext(filename))
	if category, ok := categoryByExt[ext]; ok {
		return category
	}
	return CategoryDocument
}
