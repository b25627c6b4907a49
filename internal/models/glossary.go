// internal/models/glossary.go
package models

// MaxGlossaryFieldLength 术语及译文的最大长度
const MaxGlossaryFieldLength = 255

// GlossaryEntry 书籍术语表中的一条词条
type GlossaryEntry struct {
	ID          int64  `json:"id"`
	BookID      int64  `json:"book_id"`
	Word        string `json:"word"`
	Translation string `json:"translation"`
}

func (g *GlossaryEntry) String() string {
	return g.Word + " - " + g.Translation
}
