package component

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/ui/style"
)

// SessionStatus is what the header knows about the wallet.
type SessionStatus struct {
	Address      string
	ChainID      uint64
	WrongNetwork bool
}

// StatusHeader shows the network, the wallet and the session health.
type StatusHeader struct {
	network string
	chainID uint64
	session SessionStatus
	style   StatusHeaderStyle
	width   int
}

// StatusHeaderStyle contains all styling for the status header
type StatusHeaderStyle struct {
	container lipgloss.Style
	title     lipgloss.Style
	wallet    lipgloss.Style
	good      lipgloss.Style
	bad       lipgloss.Style
	muted     lipgloss.Style
}

func NewStatusHeader(network string, chainID uint64) *StatusHeader {
	palette := style.DefaultPalette()

	return &StatusHeader{
		network: network,
		chainID: chainID,
		style: StatusHeaderStyle{
			container: lipgloss.NewStyle().
				Foreground(palette.Text).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Primary).
				Padding(0, 2),
			title:  lipgloss.NewStyle().Foreground(palette.Primary).Bold(true),
			wallet: lipgloss.NewStyle().Foreground(palette.TextSecondary),
			good:   lipgloss.NewStyle().Foreground(palette.Success).Bold(true),
			bad:    lipgloss.NewStyle().Foreground(palette.Error).Bold(true),
			muted:  lipgloss.NewStyle().Foreground(palette.TextMuted),
		},
	}
}

func (sh *StatusHeader) SetSession(s SessionStatus) {
	sh.session = s
}

func (sh *StatusHeader) Session() SessionStatus {
	return sh.session
}

// SetWidth sets the component width for responsive layout
func (sh *StatusHeader) SetWidth(width int) {
	sh.width = width
	if width > 4 {
		sh.style.container = sh.style.container.Width(width - 4)
	}
}

func (sh *StatusHeader) View() string {
	title := sh.style.title.Render(fmt.Sprintf("%s (%d)", sh.network, sh.chainID))
	content := lipgloss.JoinHorizontal(lipgloss.Left,
		title, " | ", sh.renderWallet(), " | ", sh.renderNetwork())
	return sh.style.container.Render(content)
}

func (sh *StatusHeader) renderWallet() string {
	if sh.session.Address == "" {
		return sh.style.muted.Render("Wallet: not connected")
	}
	return sh.style.wallet.Render("Wallet: " + address.Shorten(sh.session.Address))
}

func (sh *StatusHeader) renderNetwork() string {
	switch {
	case sh.session.Address == "":
		return sh.style.muted.Render("○ offline")
	case sh.session.WrongNetwork:
		return sh.style.bad.Render(fmt.Sprintf("● wrong network (%d)", sh.session.ChainID))
	default:
		return sh.style.good.Render("● connected")
	}
}

// GetHeight returns the component height for layout calculations
func (sh *StatusHeader) GetHeight() int {
	return 3
}
