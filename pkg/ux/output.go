// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides rich terminal output styling for the CSV CLI.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = ColorTealBright
	ColorWarning = lipgloss.Color("#F4D03F") // Gold/amber for warnings
	ColorError   = lipgloss.Color("#E74C3C") // Red for errors
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
	ErrorBox  lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Output Mode
// =============================================================================

// Mode selects how a Printer renders.
type Mode string

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain uses icons without styling, for pipes and log capture.
	ModePlain Mode = "plain"

	// ModeMachine writes results as JSON and status lines with a
	// fixed "LEVEL: text" prefix.
	ModeMachine Mode = "machine"
)

// ParseMode maps a flag value to a Mode. "" and "auto" detect from f.
func ParseMode(s string, f *os.File) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DetectMode(f), nil
	case "rich":
		return ModeRich, nil
	case "plain":
		return ModePlain, nil
	case "machine", "json":
		return ModeMachine, nil
	default:
		return ModePlain, fmt.Errorf("unknown output mode %q (want auto, rich, plain or machine)", s)
	}
}

// DetectMode returns ModeRich when f is a terminal and ModePlain otherwise.
// A nil f is not a terminal.
func DetectMode(f *os.File) Mode {
	if f == nil {
		return ModePlain
	}
	fd := f.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeRich
	}
	return ModePlain
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes CLI output in one Mode.
//
// # Description
//
// Results go to out. In ModeMachine, warnings and errors go to errOut so
// stdout stays parseable.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
}

// NewPrinter creates a Printer. A nil errOut writes errors to out.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	if errOut == nil {
		errOut = out
	}
	return &Printer{out: out, errOut: errOut, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Machine reports whether results should be emitted as JSON.
func (p *Printer) Machine() bool { return p.mode == ModeMachine }

// Title prints a styled title. Suppressed in machine mode.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
	case ModeRich:
		fmt.Fprintln(p.out, Styles.Title.Render(text))
	default:
		fmt.Fprintln(p.out, text)
	}
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	p.status(p.out, "OK", IconSuccess, Styles.Success, text)
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	p.status(p.errOut, "WARN", IconWarning, Styles.Warning, text)
}

// Error prints an error message
func (p *Printer) Error(text string) {
	p.status(p.errOut, "ERROR", IconError, Styles.Error, text)
}

func (p *Printer) status(machineOut io.Writer, prefix string, icon Icon, style lipgloss.Style, text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(machineOut, "%s: %s\n", prefix, text)
	case ModeRich:
		fmt.Fprintf(p.out, "%s %s\n", icon.Render(), style.Render(text))
	default:
		fmt.Fprintf(p.out, "%s %s\n", icon, text)
	}
}

// Field prints an aligned "key: value" line. Suppressed in machine mode.
func (p *Printer) Field(key string, value any) {
	switch p.mode {
	case ModeMachine:
	case ModeRich:
		fmt.Fprintf(p.out, "  %s %v\n", Styles.Muted.Render(fmt.Sprintf("%-22s", key+":")), value)
	default:
		fmt.Fprintf(p.out, "  %-22s %v\n", key+":", value)
	}
}

// Bullet prints an indented list item. Suppressed in machine mode.
func (p *Printer) Bullet(text string) {
	switch p.mode {
	case ModeMachine:
	default:
		fmt.Fprintf(p.out, "    %s %s\n", IconBullet, text)
	}
}

// Box prints text in a rounded box. Plain mode prints the title and
// content on separate lines.
func (p *Printer) Box(title, content string) {
	switch p.mode {
	case ModeMachine:
	case ModeRich:
		fmt.Fprintln(p.out, Styles.Box.Width(72).Render(Styles.Title.Render(title)+"\n"+content))
	default:
		fmt.Fprintf(p.out, "%s\n%s\n", title, content)
	}
}

// JSON writes v as indented JSON followed by a newline.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Summary prints a summary line with counts
func (p *Printer) Summary(approved, rejected, total int) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.out, "SUMMARY: approved=%d rejected=%d total=%d\n", approved, rejected, total)
	case ModeRich:
		fmt.Fprintf(p.out, "\n%s %s  %s %s  %s %s\n",
			Styles.Success.Render(fmt.Sprintf("%d", approved)), Styles.Muted.Render("approved"),
			Styles.Error.Render(fmt.Sprintf("%d", rejected)), Styles.Muted.Render("rejected"),
			Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("total"),
		)
	default:
		fmt.Fprintf(p.out, "\n%d approved  %d rejected  %d total\n", approved, rejected, total)
	}
}

// CoverageBar renders pct (0..100) as a bar of the given width.
func (p *Printer) CoverageBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	bar, rest := strings.Repeat("█", filled), strings.Repeat("░", width-filled)
	if p.mode == ModeRich {
		bar, rest = Styles.Success.Render(bar), Styles.Muted.Render(rest)
	}
	return fmt.Sprintf("%s%s %5.1f%%", bar, rest, pct)
}
