package types

// Comment is a single user comment extracted from a post page.
type Comment struct {
	// Text is the cleaned comment body. Never empty once a comment leaves
	// the cleaning pipeline.
	Text string `json:"comment_text" yaml:"comment_text" bson:"comment_text"`

	// Timestamp is whatever the page displayed next to the comment, if anything.
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

// PageResult pairs a post URL with the comments extracted from it.
type PageResult struct {
	URL      string    `json:"url"      bson:"url"`
	Comments []Comment `json:"comments" bson:"comments"`
}

// Truncate returns at most max comments.
func Truncate(comments []Comment, max int) []Comment {
	if max >= 0 && len(comments) > max {
		return comments[:max]
	}
	return comments
}

// Sample returns the first n comments as a fresh slice.
func Sample(comments []Comment, n int) []Comment {
	n = min(max(n, 0), len(comments))
	out := make([]Comment, n)
	copy(out, comments[:n])
	return out
}
