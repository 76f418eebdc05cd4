package store

import "container/list"

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

// lruCache is an LRU cache. It is not safe for concurrent access.
type lruCache[K comparable, V any] struct {
	data map[K]*list.Element
	cap  int
	ll   *list.List
}

func newLRU[K comparable, V any](cap int) *lruCache[K, V] {
	if cap < 1 {
		cap = 1
	}
	return &lruCache[K, V]{
		data: make(map[K]*list.Element, cap),
		cap:  cap,
		ll:   list.New(),
	}
}

func (lru *lruCache[K, V]) get(key K) (V, bool) {
	e, ok := lru.data[key]
	if !ok {
		return *new(V), false
	}
	lru.ll.MoveToFront(e)
	return e.Value.(*lruItem[K, V]).value, true
}

// add inserts or replaces a value, evicting the least recently used item if the cache is full.
func (lru *lruCache[K, V]) add(key K, value V) (evicted bool) {
	if e, ok := lru.data[key]; ok {
		e.Value.(*lruItem[K, V]).value = value
		lru.ll.MoveToFront(e)
		return false
	}

	if lru.ll.Len() < lru.cap {
		lru.data[key] = lru.ll.PushFront(&lruItem[K, V]{key, value})
		return false
	}

	// reuse the tail item
	e := lru.ll.Back()
	item := e.Value.(*lruItem[K, V])
	delete(lru.data, item.key)
	*item = lruItem[K, V]{key, value}
	lru.data[key] = e
	lru.ll.MoveToFront(e)
	return true
}

func (lru *lruCache[K, V]) len() int {
	return len(lru.data)
}
