// Package ui provides the conversational TUI for parley.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	te "github.com/muesli/termenv"
	"github.com/sahilm/fuzzy"

	"github.com/dgnsrekt/parley/internal/audio"
	"github.com/dgnsrekt/parley/internal/cache"
	"github.com/dgnsrekt/parley/internal/client"
	"github.com/dgnsrekt/parley/internal/pipeline"
	"github.com/dgnsrekt/parley/internal/transcript"
)

const (
	statusMessageTimeout = time.Second * 3
	ellipsis             = "…"
)

// noopPlayer swallows playback when audio is muted or no device exists.
// Clips end immediately so their resources never linger.
type noopPlayer struct{}

func (noopPlayer) Start(_ *audio.Clip, opts audio.StartOptions) error {
	if opts.OnEnded != nil {
		opts.OnEnded()
	}
	return nil
}

func (noopPlayer) Stop() {}

// NewProgram wires the client, cache and pipeline together and returns the
// Tea program for the session.
func NewProgram(cfg Config) *tea.Program {
	log.Debug(
		"starting parley",
		"server", cfg.ServerURL,
		"rate", cfg.PlaybackRate,
		"cache_capacity", cfg.CacheCapacity,
	)

	svc := client.New(cfg.ServerURL)

	var player pipeline.Player
	if cfg.Muted {
		player = noopPlayer{}
	} else if p, err := audio.NewPlayer(); err != nil {
		log.Warn("audio unavailable, running text only", "error", err)
		player = noopPlayer{}
	} else {
		player = p
	}

	audioCache := cache.New(cfg.CacheCapacity)
	pipe := pipeline.New(svc, player, audioCache, transcript.NewStore(), pipeline.Config{
		PlaybackRate:   cfg.PlaybackRate,
		TypingInterval: time.Duration(cfg.TypingIntervalMS) * time.Millisecond,
	})

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	m := newModel(cfg, svc, pipe, audioCache)
	return tea.NewProgram(m, opts...)
}

type model struct {
	cfg      Config
	client   *client.Client
	pipeline *pipeline.Pipeline
	cache    *cache.AudioCache

	input    textinput.Model
	filter   textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	state         pipeline.State
	busy          bool
	typingPartial string
	typing        bool
	filtering     bool
	statusMessage string
	fatalErr      error
}

func newModel(cfg Config, svc *client.Client, pipe *pipeline.Pipeline, audioCache *cache.AudioCache) *model {
	in := textinput.New()
	in.Placeholder = "Say something..."
	in.CharLimit = 2000
	in.Focus()

	fl := textinput.New()
	fl.Prompt = filterPromptStyle.Render("Filter") + " "
	fl.CharLimit = 100

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return &model{
		cfg:      cfg,
		client:   svc,
		pipeline: pipe,
		cache:    audioCache,
		input:    in,
		filter:   fl,
		spinner:  sp,
		state:    pipeline.StateIdle,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForEvent(m.pipeline.Events()),
	)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.setSize()
		m.rebuildRenderer()
		m.refreshViewport(true)

	case tea.KeyMsg:
		cmd, handled := m.handleKey(msg)
		if handled {
			return m, cmd
		}
		cmds = append(cmds, cmd)

	case pipelineEventMsg:
		cmds = append(cmds, m.handlePipelineEvent(msg.event))
		cmds = append(cmds, waitForEvent(m.pipeline.Events()))

	case statusMessageTimeoutMsg:
		m.statusMessage = ""

	case errMsg:
		m.fatalErr = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if m.filtering {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		cmds = append(cmds, cmd)
		m.refreshViewport(true)
	} else if !m.busy {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey deals with application-level keys. When handled is true the key
// must not fall through to the focused text field.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.pipeline.Close()
		return tea.Quit, true

	case "esc":
		if m.filtering {
			m.filtering = false
			m.filter.Reset()
			m.input.Focus()
			m.refreshViewport(true)
			return nil, true
		}
		// Escape is the keyboard shortcut for the stop command.
		m.pipeline.Stop()
		return nil, true

	case "enter":
		if m.filtering {
			m.filtering = false
			m.input.Focus()
			return nil, true
		}
		if m.busy {
			return nil, true
		}
		return m.submit(), true

	case "/":
		if !m.filtering && m.input.Value() == "" {
			m.filtering = true
			m.input.Blur()
			m.filter.Reset()
			m.filter.Focus()
			m.refreshViewport(true)
			return textinput.Blink, true
		}

	case "ctrl+y":
		return m.copyLastReply(), true
	}
	return nil, false
}

// submit hands the input line to the pipeline. Blank input is ignored
// without comment.
func (m *model) submit() tea.Cmd {
	raw := m.input.Value()
	err := m.pipeline.Submit(raw)
	switch {
	case err == pipeline.ErrEmptyInput:
		return nil
	case err != nil:
		return func() tea.Msg { return errMsg{err} }
	}

	m.input.Reset()
	m.busy = true
	m.typingPartial = ""
	m.typing = false
	m.refreshViewport(true)
	return m.spinner.Tick
}

// copyLastReply puts the most recent assistant message on the clipboard.
func (m *model) copyLastReply() tea.Cmd {
	msg, ok := m.pipeline.Store().LastByRole(transcript.RoleAssistant)
	if !ok {
		return m.showStatus("Nothing to copy")
	}
	if err := clipboard.WriteAll(msg.Content); err != nil {
		log.Error("clipboard write failed", "error", err)
		return m.showStatus("Copy failed")
	}
	return m.showStatus("Copied reply")
}

func (m *model) showStatus(text string) tea.Cmd {
	m.statusMessage = text
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}

// handlePipelineEvent folds turn progress into the view.
func (m *model) handlePipelineEvent(ev pipeline.Event) tea.Cmd {
	switch ev := ev.(type) {
	case pipeline.StateEvent:
		m.state = ev.State

	case pipeline.TypingEvent:
		m.typingPartial = ev.Partial
		m.typing = !ev.Done
		m.refreshViewport(true)

	case pipeline.TurnDoneEvent:
		m.busy = false
		if ev.Err != nil {
			log.Debug("turn ended with error", "error", ev.Err)
		}
		m.refreshViewport(true)
	}
	return nil
}

func (m *model) setSize() {
	if !m.ready {
		m.viewport = viewport.New(m.width, m.viewportHeight())
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = m.viewportHeight()
	}
	m.input.Width = m.width - 4
	m.filter.Width = m.width - 12
}

// viewportHeight leaves room for the input line, status bar and help line.
func (m *model) viewportHeight() int {
	h := m.height - 4
	if h < 3 {
		h = 3
	}
	return h
}

// rebuildRenderer recreates the markdown renderer at the current width.
func (m *model) rebuildRenderer() {
	if !m.cfg.GlamourEnabled {
		m.renderer = nil
		return
	}

	width := m.width - 2
	if m.cfg.GlamourMaxWidth > 0 && uint(width) > m.cfg.GlamourMaxWidth {
		width = int(m.cfg.GlamourMaxWidth)
	}

	opts := []glamour.TermRendererOption{
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	}
	switch m.cfg.GlamourStyle {
	case "", styles.AutoStyle:
		if te.HasDarkBackground() {
			opts = append(opts, glamour.WithStandardStyle(styles.DarkStyle))
		} else {
			opts = append(opts, glamour.WithStandardStyle(styles.LightStyle))
		}
	default:
		opts = append(opts, glamour.WithStylePath(m.cfg.GlamourStyle))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		log.Error("could not build markdown renderer", "error", err)
		m.renderer = nil
		return
	}
	m.renderer = r
}

// refreshViewport re-renders the transcript. When follow is true the view
// sticks to the newest message.
func (m *model) refreshViewport(follow bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}

// visibleMessages applies the fuzzy filter, when active, to the transcript.
func (m *model) visibleMessages() []transcript.Message {
	msgs := m.pipeline.Store().Messages()
	if !m.filtering || strings.TrimSpace(m.filter.Value()) == "" {
		return msgs
	}

	targets := make([]string, len(msgs))
	for i, msg := range msgs {
		targets[i] = msg.Content
	}
	matches := fuzzy.Find(m.filter.Value(), targets)

	out := make([]transcript.Message, 0, len(matches))
	for _, match := range matches {
		out = append(out, msgs[match.Index])
	}
	return out
}

func (m *model) renderTranscript() string {
	msgs := m.visibleMessages()
	if len(msgs) == 0 && !m.typing && !m.busy {
		return m.renderWelcome()
	}

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	if m.typing {
		b.WriteString(assistantLabelStyle.Render("Parley"))
		b.WriteString("\n")
		b.WriteString(m.typingPartial)
		b.WriteString(typingCursorStyle.Render("▎"))
		b.WriteString("\n")
	} else if m.busy {
		b.WriteString(assistantLabelStyle.Render("Parley"))
		b.WriteString("\n")
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(helpStyle.Render(m.state.String() + ellipsis))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *model) renderMessage(msg transcript.Message) string {
	switch msg.Role {
	case transcript.RoleUser:
		return userLabelStyle.Render("You") + "\n" + msg.Content + "\n"
	case transcript.RoleError:
		return errorLabelStyle.Render("Error") + "\n" + errorTextStyle.Render(msg.Content) + "\n"
	default:
		return assistantLabelStyle.Render("Parley") + "\n" + m.renderMarkdown(msg.Content) + "\n"
	}
}

// renderMarkdown renders finalized assistant replies. The in-progress typing
// partial stays plain so the reveal is character-accurate.
func (m *model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		log.Debug("markdown render failed", "error", err)
		return content
	}
	return strings.TrimRight(out, "\n") + "\n"
}

func (m *model) renderWelcome() string {
	lines := []string{
		"",
		"",
		"parley",
		"",
		"Type a message and press enter to talk.",
		"Say \"stop\" to cut a reply short.",
	}
	return welcomeStyle.Width(m.width).Render(strings.Join(lines, "\n"))
}

func (m *model) statusBar() string {
	var left string
	if m.statusMessage != "" {
		left = " " + m.statusMessage + " "
	} else {
		left = fmt.Sprintf(" %s ", m.state)
	}

	note := fmt.Sprintf(
		" %s · %.2gx · %d clips (%s) ",
		m.client.BaseURL(),
		m.cfg.PlaybackRate,
		m.cache.Len(),
		humanize.IBytes(uint64(m.cache.Bytes())),
	)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(note)
	if gap < 0 {
		note = ""
		gap = m.width - lipgloss.Width(left)
		if gap < 0 {
			gap = 0
		}
	}

	bar := statusBarStyle.Render(left) +
		statusBarStyle.Render(strings.Repeat(" ", gap)) +
		statusBarNoteStyle.Render(note)
	return truncate.StringWithTail(bar, uint(m.width), ellipsis)
}

func (m *model) helpView() string {
	if m.filtering {
		return helpStyle.Render(" esc: clear filter · enter: keep filter")
	}
	return helpStyle.Render(" enter: send · esc: stop speech · /: filter · ctrl+y: copy reply · ctrl+c: quit")
}

func (m *model) View() string {
	if m.fatalErr != nil {
		return errorTextStyle.Render("Error: "+m.fatalErr.Error()) + "\n"
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	var input string
	if m.filtering {
		input = m.filter.View()
	} else {
		input = m.input.View()
	}

	return strings.Join([]string{
		m.viewport.View(),
		input,
		m.statusBar(),
		m.helpView(),
	}, "\n")
}
