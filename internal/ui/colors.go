package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/regroup/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

// Status renders an operation status in the color of its outcome.
func (p *Palette) Status(s models.Status) string {
	switch s {
	case models.StatusCompleted, models.StatusMonitoring:
		return p.ok.Render(s.String())
	case models.StatusFailed, models.StatusError:
		return p.err.Render(s.String())
	case models.StatusInit, models.StatusCreatingGroup:
		return p.warn.Render(s.String())
	default:
		return p.title.UnsetMarginBottom().Render(s.String())
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
