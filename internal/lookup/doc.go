// Package lookup resolves submitted utterances into dictionary entries
// using a chat-completion model: phonetic transcription, translation, a
// short explanation, synonyms, and example sentences in both languages.
package lookup
