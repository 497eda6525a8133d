package testutil

import (
	"sync"
	"time"

	"github.com/eugener/feedcache/internal/storage"
)

// MessageKind identifies a call received by FeedStoreSpy.
type MessageKind int

const (
	MsgDeleteCachedFeed MessageKind = iota
	MsgInsert
	MsgRetrieve
)

func (k MessageKind) String() string {
	switch k {
	case MsgDeleteCachedFeed:
		return "delete"
	case MsgInsert:
		return "insert"
	case MsgRetrieve:
		return "retrieve"
	}
	return "unknown"
}

// Message is one recorded store call. Images and Timestamp are set for inserts.
type Message struct {
	Kind      MessageKind
	Images    []storage.LocalImage
	Timestamp time.Time
}

// FeedStoreSpy records every call and holds its completion until the test
// completes it explicitly. Completions are indexed per kind, in call order.
type FeedStoreSpy struct {
	mu        sync.Mutex
	messages  []Message
	deletions []storage.DeletionCompletion
	inserts   []storage.InsertionCompletion
	retrieves []storage.RetrievalCompletion
}

var _ storage.FeedStore = (*FeedStoreSpy)(nil)

// DeleteCachedFeed records the call.
func (s *FeedStoreSpy) DeleteCachedFeed(completion storage.DeletionCompletion) {
	s.mu.Lock()
	s.messages = append(s.messages, Message{Kind: MsgDeleteCachedFeed})
	s.deletions = append(s.deletions, completion)
	s.mu.Unlock()
}

// Insert records the call with its arguments.
func (s *FeedStoreSpy) Insert(images []storage.LocalImage, timestamp time.Time, completion storage.InsertionCompletion) {
	s.mu.Lock()
	s.messages = append(s.messages, Message{Kind: MsgInsert, Images: images, Timestamp: timestamp})
	s.inserts = append(s.inserts, completion)
	s.mu.Unlock()
}

// Retrieve records the call.
func (s *FeedStoreSpy) Retrieve(completion storage.RetrievalCompletion) {
	s.mu.Lock()
	s.messages = append(s.messages, Message{Kind: MsgRetrieve})
	s.retrieves = append(s.retrieves, completion)
	s.mu.Unlock()
}

// Messages returns a copy of the recorded calls.
func (s *FeedStoreSpy) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Kinds returns only the kinds of the recorded calls.
func (s *FeedStoreSpy) Kinds() []MessageKind {
	msgs := s.Messages()
	out := make([]MessageKind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}

// CompleteDeletion completes the i-th deletion with err.
func (s *FeedStoreSpy) CompleteDeletion(i int, err error) {
	s.mu.Lock()
	c := s.deletions[i]
	s.mu.Unlock()
	c(err)
}

// CompleteInsertion completes the i-th insertion with err.
func (s *FeedStoreSpy) CompleteInsertion(i int, err error) {
	s.mu.Lock()
	c := s.inserts[i]
	s.mu.Unlock()
	c(err)
}

// CompleteRetrieval completes the i-th retrieval with err.
func (s *FeedStoreSpy) CompleteRetrieval(i int, err error) {
	s.mu.Lock()
	c := s.retrieves[i]
	s.mu.Unlock()
	c(nil, err)
}

// CompleteRetrievalWithEmpty completes the i-th retrieval with an empty cache.
func (s *FeedStoreSpy) CompleteRetrievalWithEmpty(i int) {
	s.mu.Lock()
	c := s.retrieves[i]
	s.mu.Unlock()
	c(nil, nil)
}

// CompleteRetrievalWith completes the i-th retrieval with a cached feed.
func (s *FeedStoreSpy) CompleteRetrievalWith(i int, images []storage.LocalImage, timestamp time.Time) {
	s.mu.Lock()
	c := s.retrieves[i]
	s.mu.Unlock()
	c(&storage.CachedFeed{Images: images, Timestamp: timestamp}, nil)
}
