package reveal

import (
	"errors"
	"math/rand"
	"sync"
)

var ErrEmptyPool = errors.New("empty_content_pool")

// StaticPool serves prompts from fixed in-memory lists. It is the default
// pool; deployments can swap in an external source behind the same interface.
type StaticPool struct {
	mu     sync.Mutex
	byKind map[string][]string
}

func NewStaticPool(truths, dares []string) *StaticPool {
	return &StaticPool{byKind: map[string][]string{
		KindTruth: truths,
		KindDare:  dares,
	}}
}

// DefaultPool returns a pool with a small built-in prompt set.
func DefaultPool() *StaticPool {
	return NewStaticPool(
		[]string{
			"What is the most embarrassing thing you have done on stream?",
			"What is one thing your followers would be surprised to learn?",
			"Who was your first celebrity crush?",
			"What is the last lie you told?",
			"What is your guilty-pleasure song?",
		},
		[]string{
			"Do your best impression of your favorite follower.",
			"Sing the chorus of the last song you listened to.",
			"Show the most recent photo in your camera roll.",
			"Speak in an accent for the next two minutes.",
			"Let the room pick your profile status for a day.",
		},
	)
}

func (p *StaticPool) Pick(kind string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.byKind[kind]
	if len(items) == 0 {
		return "", ErrEmptyPool
	}
	return items[rand.Intn(len(items))], nil
}
