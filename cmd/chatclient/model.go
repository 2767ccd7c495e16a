package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cwrk-planet/tripchat/pkg/chatclient"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const historyTimeout = 10 * time.Second

// Сообщения, приходящие из сессии и загрузчика истории.
type (
	stateMsg   chatclient.State
	liveMsg    chatproto.Message
	noticeMsg  string
	sessionErr struct{ err error }
	sendFailed struct{ err error }
	historyMsg struct {
		initial bool
		added   int
		err     error
	}
)

type styles struct {
	header  lipgloss.Style
	sender  lipgloss.Style
	self    lipgloss.Style
	stamp   lipgloss.Style
	status  lipgloss.Style
	errLine lipgloss.Style
}

func newStyles() styles {
	return styles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7dd3fc")),
		sender:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a7f3d0")),
		self:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fbcfe8")),
		stamp:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280")),
		status:  lipgloss.NewStyle().Foreground(lipgloss.Color("#93c5fd")),
		errLine: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fca5a5")),
	}
}

type model struct {
	sess   *chatclient.Session
	tl     *chatclient.Timeline
	tripID string
	userID string

	inbound chan tea.Msg
	done    chan struct{}
	subs    []*chatclient.Subscription

	input  textinput.Model
	vp     viewport.Model
	styles styles

	state        chatclient.State
	status       string
	lastErr      error
	loadingOlder bool
	width        int
	ready        bool
}

func newModel(sess *chatclient.Session, hist chatclient.HistoryFetcher, tripID, userID string) *model {
	in := textinput.New()
	in.Placeholder = "message, /retry, /leave, /quit"
	in.CharLimit = 4000
	in.Focus()

	m := &model{
		sess:    sess,
		tripID:  tripID,
		userID:  userID,
		inbound: make(chan tea.Msg, 256),
		done:    make(chan struct{}),
		input:   in,
		vp:      viewport.New(0, 0),
		styles:  newStyles(),
		status:  "loading history",
	}
	m.tl = chatclient.NewTimeline(hist, chatclient.TimelineConfig{TripID: tripID})

	m.subs = []*chatclient.Subscription{
		sess.OnState(func(s chatclient.State) { m.push(stateMsg(s)) }),
		sess.OnMessage(func(msg chatproto.Message) { m.push(liveMsg(msg)) }),
		sess.OnMemberJoined(func(e chatproto.UserJoinedRoom) {
			m.push(noticeMsg(e.UserID + " joined"))
		}),
		sess.OnMemberLeft(func(e chatproto.UserLeftRoom) {
			m.push(noticeMsg(fmt.Sprintf("%s left (%s)", e.UserID, e.Reason)))
		}),
		sess.OnError(func(err error) { m.push(sessionErr{err: err}) }),
	}
	return m
}

// push передаёт событие в цикл bubbletea; после выхода события отбрасываются.
func (m *model) push(msg tea.Msg) {
	select {
	case m.inbound <- msg:
	case <-m.done:
	}
}

func (m *model) waitInbound() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.inbound:
			return msg
		case <-m.done:
			return nil
		}
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.waitInbound(),
		m.loadInitial(),
		func() tea.Msg {
			m.sess.Enter(context.Background())
			return nil
		},
	)
}

func (m *model) loadInitial() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		return historyMsg{initial: true, err: m.tl.LoadInitial(ctx)}
	}
}

func (m *model) loadOlder() tea.Cmd {
	if m.loadingOlder || !m.tl.NeedsOlder() {
		return nil
	}
	m.loadingOlder = true
	m.status = "loading older messages"
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		n, err := m.tl.LoadOlder(ctx)
		return historyMsg{added: n, err: err}
	}
}

func (m *model) shutdown() {
	for _, s := range m.subs {
		s.Cancel()
	}
	m.sess.Close()
	close(m.done)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.shutdown()
			return m, tea.Quit
		case "enter":
			cmd, quit := m.submit()
			if quit {
				m.shutdown()
				return m, tea.Quit
			}
			return m, cmd
		case "pgup":
			m.scroll(-m.vp.Height, &cmds)
		case "pgdown":
			m.scroll(m.vp.Height, &cmds)
		case "up":
			m.scroll(-1, &cmds)
		case "down":
			m.scroll(1, &cmds)
		case "end":
			m.tl.ScrollToBottom()
			m.render()
		}

	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.scroll(-3, &cmds)
		case tea.MouseButtonWheelDown:
			m.scroll(3, &cmds)
		}

	case stateMsg:
		m.state = chatclient.State(msg)
		m.status = m.state.String()
		if m.state == chatclient.StateJoined {
			m.lastErr = nil
		}
		cmds = append(cmds, m.waitInbound())

	case liveMsg:
		m.tl.Append(chatproto.Message(msg))
		m.render()
		cmds = append(cmds, m.waitInbound())

	case noticeMsg:
		m.status = string(msg)
		cmds = append(cmds, m.waitInbound())

	case sessionErr:
		m.lastErr = msg.err
		cmds = append(cmds, m.waitInbound())

	case sendFailed:
		m.lastErr = msg.err

	case historyMsg:
		if !msg.initial {
			m.loadingOlder = false
		}
		if msg.err != nil {
			m.lastErr = msg.err
			m.status = "history unavailable"
			break
		}
		if errors.Is(m.lastErr, chatclient.ErrHistoryFetch) {
			m.lastErr = nil
		}
		m.status = m.state.String()
		m.render()
		if cmd := m.loadOlder(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit обрабатывает строку ввода и возвращает команду для обращения к
// сессии: транспорт может блокироваться, а цикл bubbletea нет.
// true: пользователь вышел.
func (m *model) submit() (tea.Cmd, bool) {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	sess := m.sess

	switch text {
	case "":
		return nil, false
	case "/quit":
		return nil, true
	case "/retry":
		m.lastErr = nil
		cmds := []tea.Cmd{func() tea.Msg {
			sess.Enter(context.Background())
			return nil
		}}
		// первая страница так и не пришла: запрашиваем её заново
		if !m.tl.Loaded() {
			m.status = "loading history"
			cmds = append(cmds, m.loadInitial())
		}
		return tea.Batch(cmds...), false
	case "/leave":
		return func() tea.Msg {
			sess.Leave()
			return nil
		}, false
	}

	return func() tea.Msg {
		if err := sess.Send(text); err != nil {
			return sendFailed{err: err}
		}
		return nil
	}, false
}

func (m *model) scroll(delta int, cmds *[]tea.Cmd) {
	m.tl.Scroll(delta)
	m.render()
	if cmd := m.loadOlder(); cmd != nil {
		*cmds = append(*cmds, cmd)
	}
}

func (m *model) resize(w, h int) {
	m.width = w
	m.vp.Width = w
	m.vp.Height = max(1, h-4)
	m.input.Width = max(10, w-4)

	m.tl.SetMeasure(func(msg chatproto.Message) int {
		return lipgloss.Height(m.renderMessage(msg))
	})
	m.tl.SetHeight(m.vp.Height)
	m.ready = true
	m.render()
}

func (m *model) renderMessage(msg chatproto.Message) string {
	name := m.styles.sender
	if msg.SenderID == m.userID {
		name = m.styles.self
	}
	head := name.Render(msg.SenderID) + " " + m.styles.stamp.Render(msg.CreatedAt.Local().Format("15:04"))
	body := lipgloss.NewStyle().Width(max(10, m.width-2)).Render(msg.Text)
	return head + "\n" + body
}

// render переносит ленту в viewport со смещением из Timeline.
func (m *model) render() {
	if !m.ready {
		return
	}
	msgs := m.tl.Messages()
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, m.renderMessage(msg))
	}
	m.vp.SetContent(strings.Join(parts, "\n"))
	m.vp.SetYOffset(m.tl.Viewport().Offset)
}

func (m *model) View() string {
	if !m.ready {
		return "starting..."
	}
	header := m.styles.header.Render(fmt.Sprintf("trip %s · %s", m.tripID, m.state))
	if m.tl.HasMore() {
		header += m.styles.stamp.Render(" · ↑ older")
	}

	status := m.styles.status.Render(m.status)
	if m.lastErr != nil {
		line := m.lastErr.Error()
		if chatclient.IsConnectionError(m.lastErr) || errors.Is(m.lastErr, chatclient.ErrHistoryFetch) {
			line += " (type /retry)"
		}
		status = m.styles.errLine.Render(line)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.vp.View(),
		status,
		m.input.View(),
	)
}
