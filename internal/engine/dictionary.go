package engine

import (
	_ "embed"
	"strings"
	"sync"
)

//go:embed dictionary.txt
var dictionaryText string

var (
	dictOnce sync.Once
	dict     map[string]struct{}
)

func loadDictionary() {
	words := strings.Fields(dictionaryText)
	dict = make(map[string]struct{}, len(words))
	for _, w := range words {
		dict[w] = struct{}{}
	}
}

// inDictionary reports whether word (already folded to lowercase letters)
// is in the built-in word list or in extra.
func inDictionary(word string, extra map[string]bool) bool {
	if extra[word] {
		return true
	}
	dictOnce.Do(loadDictionary)
	_, ok := dict[word]
	return ok
}
