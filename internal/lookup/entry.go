package lookup

// ExamplePair is one example sentence in the source language with its
// translation.
type ExamplePair struct {
	Source      string `json:"source"`
	Translation string `json:"translation"`
}

// WordEntry is a resolved dictionary entry for a submitted word or phrase.
type WordEntry struct {
	ID          string        `json:"id"`
	Original    string        `json:"original"`
	Phonetic    string        `json:"phonetic"`
	Translation string        `json:"translation"`
	Explanation string        `json:"explanation"`
	Synonyms    []string      `json:"synonyms"`
	Examples    []ExamplePair `json:"examples"`
	Timestamp   int64         `json:"timestamp"` // Unix milliseconds
}
