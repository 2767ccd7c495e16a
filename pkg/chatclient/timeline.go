package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cwrk-planet/tripchat/pkg/chatproto"
)

const (
	InitialPageSize   = 10
	DefaultNearTop    = 1
	DefaultNearBottom = 2
)

type TimelineConfig struct {
	TripID   string
	PageSize int
	// NearTop: на скольких строках от верха прокрутка требует старые сообщения.
	NearTop int
	// NearBottom: на скольких строках от низа новое сообщение прокручивает ленту.
	NearBottom int
	// Measure: высота сообщения в строках. По умолчанию 1.
	Measure func(chatproto.Message) int
}

// Viewport: положение окна в строках.
type Viewport struct {
	Offset int
	Height int
	Total  int
}

// Timeline хранит ленту одной поездки: историю и живые сообщения без дублей,
// по возрастанию (createdAt, id).
type Timeline struct {
	tripID     string
	fetcher    HistoryFetcher
	pageSize   int
	nearTop    int
	nearBottom int

	mu      sync.Mutex
	measure func(chatproto.Message) int
	msgs    []chatproto.Message
	heights []int
	ids     map[string]struct{}
	hasMore bool
	loaded  bool
	loading bool
	offset  int
	height  int
}

func NewTimeline(fetcher HistoryFetcher, cfg TimelineConfig) *Timeline {
	if cfg.PageSize <= 0 {
		cfg.PageSize = InitialPageSize
	}
	if cfg.NearTop <= 0 {
		cfg.NearTop = DefaultNearTop
	}
	if cfg.NearBottom <= 0 {
		cfg.NearBottom = DefaultNearBottom
	}
	if cfg.Measure == nil {
		cfg.Measure = func(chatproto.Message) int { return 1 }
	}
	return &Timeline{
		tripID:     cfg.TripID,
		fetcher:    fetcher,
		pageSize:   cfg.PageSize,
		nearTop:    cfg.NearTop,
		nearBottom: cfg.NearBottom,
		measure:    cfg.Measure,
		ids:        make(map[string]struct{}),
	}
}

func (t *Timeline) fetch(ctx context.Context, before string) (chatproto.MessagesPage, error) {
	page, err := t.fetcher.GetMessages(ctx, t.tripID, t.pageSize, before)
	if err != nil && !errors.Is(err, ErrHistoryFetch) {
		err = fmt.Errorf("%w: %v", ErrHistoryFetch, err)
	}
	return page, err
}

// LoadInitial загружает последнюю страницу и прокручивает ленту вниз.
// При ошибке лента не меняется.
func (t *Timeline) LoadInitial(ctx context.Context) error {
	page, err := t.fetch(ctx, "")
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	first := !t.loaded
	wasBottom := t.nearBottomLocked()
	for _, m := range page.Messages {
		t.insertLocked(m)
	}
	if first {
		t.hasMore = page.HasMore
	}
	t.loaded = true
	if first || wasBottom {
		t.offset = t.maxOffsetLocked()
	}
	return nil
}

// LoadOlder подгружает страницу перед самым старым сообщением и сдвигает
// offset на высоту добавленного, чтобы видимое содержимое не прыгнуло.
// Возвращает число добавленных сообщений.
func (t *Timeline) LoadOlder(ctx context.Context) (int, error) {
	t.mu.Lock()
	if !t.loaded || t.loading || !t.hasMore || len(t.msgs) == 0 {
		t.mu.Unlock()
		return 0, nil
	}
	cursor := t.msgs[0].ID
	t.loading = true
	t.mu.Unlock()

	page, err := t.fetch(ctx, cursor)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		return 0, err
	}

	added := 0
	for _, m := range page.Messages {
		idx, ok := t.insertLocked(m)
		if !ok {
			continue
		}
		added++
		if t.lineOfLocked(idx) <= t.offset {
			t.offset += t.heights[idx]
		}
	}
	t.hasMore = page.HasMore
	t.clampLocked()
	return added, nil
}

// Append добавляет живое сообщение. Лента прокручивается вниз, только если
// пользователь был у нижнего края. false: сообщение уже есть.
func (t *Timeline) Append(m chatproto.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasBottom := t.nearBottomLocked()
	idx, ok := t.insertLocked(m)
	if !ok {
		return false
	}
	if wasBottom {
		t.offset = t.maxOffsetLocked()
	} else if t.lineOfLocked(idx) <= t.offset {
		// вставка на место верхней строки окна тоже сдвигает видимое вниз
		t.offset += t.heights[idx]
	}
	return true
}

// Scroll сдвигает окно на delta строк и сообщает, пора ли звать LoadOlder.
func (t *Timeline) Scroll(delta int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.offset += delta
	t.clampLocked()
	return t.needsOlderLocked()
}

// SetOffset ставит окно на абсолютную строку.
func (t *Timeline) SetOffset(offset int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.offset = offset
	t.clampLocked()
	return t.needsOlderLocked()
}

func (t *Timeline) ScrollToBottom() {
	t.mu.Lock()
	t.offset = t.maxOffsetLocked()
	t.mu.Unlock()
}

// SetHeight задаёт высоту окна; прижатая к низу лента остаётся внизу.
func (t *Timeline) SetHeight(h int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasBottom := t.nearBottomLocked()
	if h < 0 {
		h = 0
	}
	t.height = h
	if wasBottom {
		t.offset = t.maxOffsetLocked()
	}
	t.clampLocked()
}

// SetMeasure пересчитывает высоты, например после смены ширины терминала.
func (t *Timeline) SetMeasure(fn func(chatproto.Message) int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasBottom := t.nearBottomLocked()
	t.measure = fn
	for i, m := range t.msgs {
		t.heights[i] = t.heightOf(m)
	}
	if wasBottom {
		t.offset = t.maxOffsetLocked()
	}
	t.clampLocked()
}

// NeedsOlder: окно у верхнего края и есть что подгружать.
func (t *Timeline) NeedsOlder() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.needsOlderLocked()
}

func (t *Timeline) Messages() []chatproto.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chatproto.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Timeline) Viewport() Viewport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Viewport{Offset: t.offset, Height: t.height, Total: t.totalLocked()}
}

// Loaded: первая страница истории уже получена.
func (t *Timeline) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

func (t *Timeline) AtBottom() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nearBottomLocked()
}

func olderThan(a, b chatproto.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (t *Timeline) heightOf(m chatproto.Message) int {
	h := t.measure(m)
	if h < 1 {
		return 1
	}
	return h
}

// insertLocked вставляет сообщение на его место по порядку; дубль по id отбрасывается.
func (t *Timeline) insertLocked(m chatproto.Message) (int, bool) {
	if _, dup := t.ids[m.ID]; dup {
		return 0, false
	}
	t.ids[m.ID] = struct{}{}

	idx := sort.Search(len(t.msgs), func(i int) bool { return olderThan(m, t.msgs[i]) })
	t.msgs = append(t.msgs, chatproto.Message{})
	copy(t.msgs[idx+1:], t.msgs[idx:])
	t.msgs[idx] = m

	t.heights = append(t.heights, 0)
	copy(t.heights[idx+1:], t.heights[idx:])
	t.heights[idx] = t.heightOf(m)
	return idx, true
}

// lineOfLocked: номер первой строки сообщения idx.
func (t *Timeline) lineOfLocked(idx int) int {
	n := 0
	for _, h := range t.heights[:idx] {
		n += h
	}
	return n
}

func (t *Timeline) totalLocked() int {
	return t.lineOfLocked(len(t.heights))
}

func (t *Timeline) maxOffsetLocked() int {
	if m := t.totalLocked() - t.height; m > 0 {
		return m
	}
	return 0
}

func (t *Timeline) clampLocked() {
	if limit := t.maxOffsetLocked(); t.offset > limit {
		t.offset = limit
	}
	if t.offset < 0 {
		t.offset = 0
	}
}

func (t *Timeline) nearBottomLocked() bool {
	return t.maxOffsetLocked()-t.offset <= t.nearBottom
}

func (t *Timeline) needsOlderLocked() bool {
	return t.loaded && t.hasMore && !t.loading && t.offset <= t.nearTop
}
