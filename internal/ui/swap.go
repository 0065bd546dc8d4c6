package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/dex/quote"
	"github.com/rovshanmuradov/sonic-defi/internal/flow"
	"github.com/rovshanmuradov/sonic-defi/internal/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	"github.com/rovshanmuradov/sonic-defi/internal/ui/component"
	"github.com/rovshanmuradov/sonic-defi/internal/ui/style"
)

const (
	defaultActionTimeout = 3 * time.Minute
	logPaneHeight        = 8
)

// SwapService is the part of flow.SwapFlow the screen drives.
type SwapService interface {
	Preview(ctx context.Context, tokenIn, tokenOut, amount string) (*flow.Preview, error)
	Approve(ctx context.Context, tokenIn, amount string) (string, error)
	Execute(ctx context.Context, tokenIn, tokenOut, amount, minAmountOut string) (*flow.ExecuteResult, error)
}

// Connector opens the wallet session.
type Connector interface {
	Connect(ctx context.Context) (common.Address, error)
}

// Options собирает зависимости экрана свапа.
type Options struct {
	Network      types.Network
	Tokens       []types.Token
	Service      SwapService
	Wallet       Connector
	Debouncer    *quote.Debouncer
	Sender       *UpdateSender
	Logs         *logger.LogBuffer
	QuoteTimeout time.Duration
	// DebugLogs включает debug-записи в панели логов.
	DebugLogs bool
	Logger    *zap.Logger
}

type field int

const (
	fieldIn field = iota
	fieldOut
	fieldAmount
	fieldCount
)

// busMsg wraps messages that arrived through the UpdateSender channel.
type busMsg struct{ msg tea.Msg }

// SwapModel is the bubbletea model of the swap screen.
type SwapModel struct {
	opts    Options
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	header  *component.StatusHeader
	logs    *component.CompactLogViewer
	amount  textinput.Model
	logger  *zap.Logger

	inIdx, outIdx int
	focus         field

	previewKey string
	preview    *flow.Preview
	quoting    bool
	busy       string

	status    string
	statusErr bool
	balances  map[string]string
	width     int
}

func NewSwapModel(opts Options) *SwapModel {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = 15 * time.Second
	}
	if opts.Sender == nil {
		opts.Sender = NewUpdateSender(256, opts.Logger)
	}

	amount := textinput.New()
	amount.Placeholder = "0.0"
	amount.CharLimit = 40
	amount.Width = 24

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(style.Cyan)

	m := &SwapModel{
		opts:    opts,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		header:  component.NewStatusHeader(opts.Network.Name, opts.Network.ChainID),
		logs:    component.NewCompactLogViewer(opts.Logs),
		amount:  amount,
		logger:  opts.Logger.Named("swap-screen"),
		outIdx:  min(1, len(opts.Tokens)-1),
	}
	if opts.DebugLogs {
		m.logs.SetFilter(component.LogFilter{ShowError: true, ShowWarning: true, ShowInfo: true, ShowDebug: true})
	}
	return m
}

func (m *SwapModel) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.spinner.Tick)
}

func (m *SwapModel) listen() tea.Cmd {
	ch := m.opts.Sender.Chan()
	return func() tea.Msg {
		return busMsg{msg: <-ch}
	}
}

func (m *SwapModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case busMsg:
		cmd := m.handle(msg.msg)
		return m, tea.Batch(cmd, m.listen())
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.header.SetWidth(msg.Width)
		m.help.Width = msg.Width
		m.logs.SetSize(msg.Width, logPaneHeight)
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, m.handle(msg)
	}
}

// handle applies results of async work.
func (m *SwapModel) handle(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case PreviewMsg:
		if msg.Key != m.previewKey {
			return nil
		}
		if m.opts.Debouncer != nil && !m.opts.Debouncer.IsCurrent(msg.Key) {
			return nil
		}
		m.quoting = false
		if msg.Err != nil {
			m.preview = nil
			m.setStatus("Quote failed: "+msg.Err.Error(), true)
			return nil
		}
		m.preview = msg.Preview
	case ConnectedMsg:
		m.busy = ""
		if msg.Err != nil {
			m.setStatus("Connect failed: "+msg.Err.Error(), true)
			return nil
		}
		m.header.SetSession(component.SessionStatus{Address: msg.Address, ChainID: m.opts.Network.ChainID})
		m.setStatus("Connected "+address.Shorten(msg.Address), false)
		return m.requestQuote()
	case SessionMsg:
		if msg.Disconnected {
			m.header.SetSession(component.SessionStatus{})
			m.balances = nil
			return nil
		}
		m.header.SetSession(component.SessionStatus{
			Address:      msg.Address,
			ChainID:      msg.ChainID,
			WrongNetwork: msg.WrongNetwork,
		})
	case ApprovedMsg:
		m.busy = ""
		switch {
		case msg.Err != nil:
			m.setStatus("Approve failed: "+msg.Err.Error(), true)
		case msg.Hash == "":
			m.setStatus("Allowance already sufficient", false)
		default:
			m.setStatus("Approved "+address.Shorten(msg.Hash), false)
		}
		return m.requestQuote()
	case SwappedMsg:
		m.busy = ""
		if msg.Err != nil {
			m.setStatus(describeSwapError(msg.Err), true)
			return nil
		}
		prefix := "Swap confirmed "
		if msg.Result.Swap.Simulated {
			prefix = "Swap simulated "
		}
		m.setStatus(prefix+address.Shorten(msg.Result.Swap.Hash), false)
		if msg.Result.Balances != nil {
			m.balances = msg.Result.Balances
		}
	case TxMsg:
		m.logger.Debug("Transaction settled", zap.String("kind", msg.Kind), zap.String("tx_hash", msg.Hash))
	case BalancesMsg:
		m.balances = msg.Balances
	case LogMsg:
		m.logs.Refresh()
	}
	return nil
}

func (m *SwapModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.opts.Debouncer != nil {
			m.opts.Debouncer.Stop()
		}
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil
	case key.Matches(msg, m.keys.Tab):
		m.setFocus((m.focus + 1) % fieldCount)
		return nil
	case key.Matches(msg, m.keys.ShiftTab):
		m.setFocus((m.focus + fieldCount - 1) % fieldCount)
		return nil
	case key.Matches(msg, m.keys.Flip):
		m.inIdx, m.outIdx = m.outIdx, m.inIdx
		return m.requestQuote()
	case key.Matches(msg, m.keys.ToggleLogs):
		m.logs.Toggle()
		return nil
	case key.Matches(msg, m.keys.Refresh):
		return m.requestQuote()
	case key.Matches(msg, m.keys.Connect):
		return m.connect()
	case key.Matches(msg, m.keys.Approve):
		return m.approve()
	case key.Matches(msg, m.keys.Swap):
		return m.execute()
	}

	if m.focus != fieldAmount {
		switch {
		case key.Matches(msg, m.keys.Prev):
			m.cycle(-1)
			return m.requestQuote()
		case key.Matches(msg, m.keys.Next):
			m.cycle(1)
			return m.requestQuote()
		}
		return nil
	}

	before := m.amount.Value()
	var cmd tea.Cmd
	m.amount, cmd = m.amount.Update(msg)
	if m.amount.Value() != before {
		return tea.Batch(cmd, m.requestQuote())
	}
	return cmd
}

func (m *SwapModel) setFocus(f field) {
	m.focus = f
	if f == fieldAmount {
		m.amount.Focus()
	} else {
		m.amount.Blur()
	}
}

// cycle moves the focused token selector, skipping the opposite side's token.
func (m *SwapModel) cycle(step int) {
	n := len(m.opts.Tokens)
	if n < 2 {
		return
	}
	idx, other := &m.inIdx, m.outIdx
	if m.focus == fieldOut {
		idx, other = &m.outIdx, m.inIdx
	}
	next := (*idx + step + n) % n
	if next == other {
		next = (next + step + n) % n
	}
	*idx = next
}

func (m *SwapModel) pair() (types.Token, types.Token, bool) {
	if len(m.opts.Tokens) < 2 {
		return types.Token{}, types.Token{}, false
	}
	return m.opts.Tokens[m.inIdx], m.opts.Tokens[m.outIdx], true
}

// requestQuote schedules a debounced preview for the current input. Older
// requests are superseded and their results dropped on arrival.
func (m *SwapModel) requestQuote() tea.Cmd {
	in, out, ok := m.pair()
	amount := strings.TrimSpace(m.amount.Value())
	if _, valid := types.ParsePositiveAmount(amount); !ok || !valid {
		m.preview = nil
		m.quoting = false
		m.previewKey = ""
		if m.opts.Debouncer != nil {
			m.opts.Debouncer.Stop()
		}
		return nil
	}

	k := quote.Key(in.ID, out.ID, amount)
	m.previewKey = k
	m.quoting = true
	svc, timeout := m.opts.Service, m.opts.QuoteTimeout
	fetch := func(k string) PreviewMsg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		p, err := svc.Preview(ctx, in.ID, out.ID, amount)
		return PreviewMsg{Key: k, Preview: p, Err: err}
	}
	if m.opts.Debouncer == nil {
		return func() tea.Msg { return fetch(k) }
	}
	sender := m.opts.Sender
	m.opts.Debouncer.Request(k, func(k string) { sender.Send(fetch(k)) })
	return nil
}

func (m *SwapModel) connect() tea.Cmd {
	if m.busy != "" || m.opts.Wallet == nil {
		return nil
	}
	m.busy = "connect"
	wallet := m.opts.Wallet
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), defaultActionTimeout)
		defer cancel()
		addr, err := wallet.Connect(ctx)
		if err != nil {
			return ConnectedMsg{Err: err}
		}
		return ConnectedMsg{Address: addr.Hex()}
	}
}

func (m *SwapModel) approve() tea.Cmd {
	in, _, ok := m.pair()
	if m.busy != "" || !ok {
		return nil
	}
	amount := strings.TrimSpace(m.amount.Value())
	m.busy = "approve"
	m.setStatus("Approving "+in.Symbol+"...", false)
	svc := m.opts.Service
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), defaultActionTimeout)
		defer cancel()
		hash, err := svc.Approve(ctx, in.ID, amount)
		return ApprovedMsg{Hash: hash, Err: err}
	}
}

func (m *SwapModel) execute() tea.Cmd {
	in, out, ok := m.pair()
	if m.busy != "" || !ok {
		return nil
	}
	amount := strings.TrimSpace(m.amount.Value())
	minOut := ""
	if m.preview != nil && m.previewKey == quote.Key(in.ID, out.ID, amount) {
		minOut = m.preview.MinAmountOut
	}
	m.busy = "swap"
	m.setStatus(fmt.Sprintf("Swapping %s %s → %s...", amount, in.Symbol, out.Symbol), false)
	svc := m.opts.Service
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), defaultActionTimeout)
		defer cancel()
		res, err := svc.Execute(ctx, in.ID, out.ID, amount, minOut)
		return SwappedMsg{Result: res, Err: err}
	}
}

func (m *SwapModel) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func describeSwapError(err error) string {
	switch {
	case errors.Is(err, types.ErrNoSession):
		return "Connect a wallet first (ctrl+o)"
	case errors.Is(err, flow.ErrAllowanceNotGranted):
		return "Allowance still too low after approval"
	default:
		return "Swap failed: " + err.Error()
	}
}

func (m *SwapModel) View() string {
	var b strings.Builder
	b.WriteString(m.header.View())
	b.WriteString("\n")

	in, out, ok := m.pair()
	if !ok {
		b.WriteString(style.Error.Render("Token list needs at least two tokens"))
		return b.String()
	}

	rows := []string{
		m.tokenRow("From", in, m.focus == fieldIn),
		m.tokenRow("To", out, m.focus == fieldOut),
		m.row("Amount", m.amount.View(), m.focus == fieldAmount),
		"",
	}
	rows = append(rows, m.previewLines(out)...)
	b.WriteString(style.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n")

	if m.busy != "" {
		b.WriteString(m.spinner.View() + " ")
	}
	if m.status != "" {
		if m.statusErr {
			b.WriteString(style.Error.Render(m.status))
		} else {
			b.WriteString(style.Success.Render(m.status))
		}
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	if m.logs.IsVisible() {
		b.WriteString("\n")
		b.WriteString(m.logs.View())
	}
	return b.String()
}

func (m *SwapModel) row(label, value string, focused bool) string {
	marker := "  "
	if focused {
		marker = style.Focused.Render("▸ ")
	}
	return marker + style.Label.Render(label) + value
}

func (m *SwapModel) tokenRow(label string, tok types.Token, focused bool) string {
	value := fmt.Sprintf("‹ %s ›", tok.Symbol)
	if focused {
		value = style.Focused.Render(value)
	}
	if bal, ok := m.balances[tok.ID]; ok {
		value += style.Muted.Render("  balance " + bal)
	}
	return m.row(label, value, focused)
}

func (m *SwapModel) previewLines(out types.Token) []string {
	if m.quoting && m.preview == nil {
		return []string{m.spinner.View() + style.Muted.Render(" fetching quote...")}
	}
	p := m.preview
	if p == nil || p.Quote == nil {
		return []string{style.Muted.Render("Enter an amount to get a quote")}
	}

	lines := []string{
		fmt.Sprintf("You receive  ~%s %s", p.Quote.AmountOut, out.Symbol),
		style.Muted.Render(fmt.Sprintf("Minimum      %s %s", p.MinAmountOut, out.Symbol)),
		style.Muted.Render("Route        " + strings.Join(p.Quote.Route, " → ") + " via " + p.Quote.Strategy),
	}
	if p.Gas != nil {
		gasLine := fmt.Sprintf("Network fee  %s %s (%s)", p.Gas.GasCostInEth, m.opts.Network.NativeCurrency.Symbol, p.Gas.Tier)
		if p.Gas.GasCostInUSD != "" {
			gasLine += " ≈ $" + p.Gas.GasCostInUSD
		}
		lines = append(lines, style.Muted.Render(gasLine))
	}
	if p.NeedsApproval {
		lines = append(lines, style.Warning.Render(fmt.Sprintf("Approval needed (allowance %s), press ctrl+a or swap", p.Allowance)))
	}
	return lines
}
