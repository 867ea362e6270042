package state

import "errors"

// ErrConversationNotFound возвращается, если у разговора нет истории.
//
// Пример использования:
//
//	if _, err := state.Last(repo, umo); errors.Is(err, state.ErrConversationNotFound) {
//	    ...
//	}
var ErrConversationNotFound = errors.New("conversation not found")
