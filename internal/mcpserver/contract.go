package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/imagesorter/internal/sorter"
)

// FrontMatterGuide describes the front-matter keys the sorter reads and
// writes, so an LLM client can prepare notes that will be sorted.
func FrontMatterGuide() string {
	keys := func(ks []string) string {
		quoted := make([]string, len(ks))
		for i, k := range ks {
			quoted[i] = "`" + k + "`"
		}
		return strings.Join(quoted, ", ")
	}
	return fmt.Sprintf(`# imagesorter front matter

A new note is sorted when it starts with a YAML front-matter block that
references a remote image.

## Keys (first non-empty key wins)

| Purpose | Keys |
|---------|------|
| Remote image (required) | %s |
| Source page, picks the folder rule | %s |
| Title, names the file | %s (falls back to the note file name) |
| Author, appended to the file name | %s |

## Result

- The image is stored as `+"`title-author.ext`"+` (or `+"`title.ext`"+`) in the folder of the
  first rule whose domain equals or is a parent of the link's host. Without a
  matching rule the vault root is used.
- The `+"`%s`"+` key is set to `+"`[[file name]]`"+`. Other keys and the body are kept.
- Characters `+"`\\ / : * ? \" < > | #`"+` are removed from file names.
- An image value that already is a `+"`[[...]]`"+` reference is left alone.

## Example

`+"```"+`markdown
---
title: Dune
author: Frank Herbert
Link: https://www.goodreads.com/book/show/44767458-dune
image: https://images.example.com/covers/dune.jpg
---
`+"```"+`
`, keys(sorter.ImageKeys), keys(sorter.LinkKeys), keys(sorter.TitleKeys), keys(sorter.AuthorKeys), sorter.ImageKey)
}
