package service

import (
	"container/heap"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
)

// waitQueue 지역별 대기열. 중복 없이 삽입 순서를 유지한다. 호출자가 잠금을 책임진다.
type waitQueue struct {
	region  string
	order   []models.WaitingEntry
	members map[string]struct{}
}

func newWaitQueue(region string) *waitQueue {
	return &waitQueue{region: region, members: make(map[string]struct{})}
}

// push 이미 있으면 false
func (q *waitQueue) push(playerID string, now time.Time) bool {
	if _, ok := q.members[playerID]; ok {
		return false
	}
	q.members[playerID] = struct{}{}
	q.order = append(q.order, models.WaitingEntry{PlayerID: playerID, Region: q.region, EnqueuedAt: now})
	return true
}

func (q *waitQueue) contains(playerID string) bool {
	_, ok := q.members[playerID]
	return ok
}

func (q *waitQueue) remove(playerID string) bool {
	if _, ok := q.members[playerID]; !ok {
		return false
	}
	delete(q.members, playerID)
	for i, e := range q.order {
		if e.PlayerID == playerID {
			q.order = append(q.order[:i:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// retain keep 에 없는 id 를 제거하고 제거된 id 를 돌려준다
func (q *waitQueue) retain(keep map[string]struct{}) []string {
	var removed []string
	kept := q.order[:0:0]
	for _, e := range q.order {
		if _, ok := keep[e.PlayerID]; ok {
			kept = append(kept, e)
			continue
		}
		delete(q.members, e.PlayerID)
		removed = append(removed, e.PlayerID)
	}
	q.order = kept
	return removed
}

// drainAll 전부 꺼내고 비운다
func (q *waitQueue) drainAll() []models.WaitingEntry {
	out := q.order
	q.order = nil
	q.members = make(map[string]struct{})
	return out
}

func (q *waitQueue) len() int {
	return len(q.order)
}

func (q *waitQueue) snapshot() []models.WaitingEntry {
	return append([]models.WaitingEntry(nil), q.order...)
}

// cooldownEntry 재입장 대기 중인 플레이어
type cooldownEntry struct {
	PlayerID string
	Region   string
	ReadyAt  time.Time
}

type cooldownHeap []cooldownEntry

func (h cooldownHeap) Len() int            { return len(h) }
func (h cooldownHeap) Less(i, j int) bool  { return h[i].ReadyAt.Before(h[j].ReadyAt) }
func (h cooldownHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cooldownHeap) Push(x interface{}) { *h = append(*h, x.(cooldownEntry)) }
func (h *cooldownHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// cooldowns 플레이어별 최신 만료 시각 + 만료 순 힙. 호출자가 잠금을 책임진다.
type cooldowns struct {
	heap    cooldownHeap
	readyAt map[string]time.Time
}

func newCooldowns() *cooldowns {
	return &cooldowns{readyAt: make(map[string]time.Time)}
}

// add 이미 있으면 더 늦은 시각으로 연장
func (c *cooldowns) add(playerID, region string, readyAt time.Time) {
	if cur, ok := c.readyAt[playerID]; ok && !readyAt.After(cur) {
		return
	}
	c.readyAt[playerID] = readyAt
	heap.Push(&c.heap, cooldownEntry{PlayerID: playerID, Region: region, ReadyAt: readyAt})
}

func (c *cooldowns) active(playerID string, now time.Time) bool {
	readyAt, ok := c.readyAt[playerID]
	return ok && now.Before(readyAt)
}

// popReady 만료된 항목을 꺼낸다. 연장되어 낡은 힙 항목은 버린다.
func (c *cooldowns) popReady(now time.Time) []cooldownEntry {
	var ready []cooldownEntry
	for c.heap.Len() > 0 && !c.heap[0].ReadyAt.After(now) {
		e := heap.Pop(&c.heap).(cooldownEntry)
		if cur, ok := c.readyAt[e.PlayerID]; !ok || !cur.Equal(e.ReadyAt) {
			continue
		}
		delete(c.readyAt, e.PlayerID)
		ready = append(ready, e)
	}
	return ready
}

func (c *cooldowns) len() int {
	return len(c.readyAt)
}
