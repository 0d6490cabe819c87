package knowledge

// Entry is one knowledge base article parsed from the corpus file.
type Entry struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Match pairs an entry with its relevance against a query.
type Match struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}
