package tui

// Banner prints the stepflow banner used by `serve` and `version`.
func (p *Printer) Banner(version string) {
	lines := []struct{ text, color string }{
		{"      _             __ _               ", "#818cf8"},
		{"  ___| |_ ___ _ __ / _| | _____      __", "#a78bfa"},
		{" / __| __/ _ \\ '_ \\ |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
		{" \\__ \\ ||  __/ |_) |  _| | (_) \\ V  V / ", "#e879f9"},
		{" |___/\\__\\___| .__/|_| |_|\\___/ \\_/\\_/  ", "#f472b6"},
		{"             |_|                        ", "#fb7185"},
	}

	p.println("")
	for _, l := range lines {
		p.println(p.out.String(l.text).Foreground(p.out.Color(l.color)).String())
	}
	if version != "" {
		p.println(p.out.String("  v" + version).Faint().String())
	}
	p.println("")
}
