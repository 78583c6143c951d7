package pattern

import (
	"fmt"
	"strconv"
	"strings"
)

type Parser struct{ cfg ParserConfig }

func NewParser(cfg ParserConfig) *Parser {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultParserConfig().MaxDepth
	}
	if cfg.MaxFill <= 0 {
		cfg.MaxFill = DefaultParserConfig().MaxFill
	}
	return &Parser{cfg: cfg}
}

// Parse compiles notation into steps. Malformed input yields a single rest
// slot together with a *ParseError so playback can continue silently.
func Parse(text string) ([]Step, error) {
	return NewParser(DefaultParserConfig()).Parse(text)
}

func (p *Parser) Parse(text string) ([]Step, error) {
	if IsReset(text) {
		return nil, nil
	}
	sc := &scanner{src: text, cfg: p.cfg}
	steps, err := sc.sequence(0)
	if err != nil {
		return []Step{Rest()}, err
	}
	return steps, nil
}

// ParseStep parses text that must hold exactly one slot, for editing a
// single step in place.
func (p *Parser) ParseStep(text string) (Step, error) {
	steps, err := p.Parse(text)
	if err != nil {
		return Rest(), err
	}
	if len(steps) != 1 {
		return Rest(), &ParseError{Pos: 0, Msg: fmt.Sprintf("expected one step, got %d", len(steps))}
	}
	return steps[0], nil
}

// ParseValue parses a single degree, note name or symbol.
func ParseValue(text string) (Value, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Value{}, &ParseError{Pos: 0, Msg: "empty value"}
	}
	sc := &scanner{src: text, cfg: DefaultParserConfig()}
	if isDelim(text[0]) {
		return Value{}, sc.errorf(0, "unexpected %q", text[0])
	}
	v, err := sc.value()
	if err != nil {
		return Value{}, err
	}
	if !sc.eof() {
		return Value{}, sc.errorf(sc.pos, "trailing input")
	}
	return v, nil
}

// IsReset reports whether text is the lone '.' that clears a track.
func IsReset(text string) bool {
	return strings.TrimSpace(text) == "."
}

type scanner struct {
	src string
	pos int
	cfg ParserConfig
}

func (sc *scanner) errorf(at int, format string, args ...any) error {
	return &ParseError{Pos: at, Msg: fmt.Sprintf(format, args...)}
}

func (sc *scanner) eof() bool { return sc.pos >= len(sc.src) }

func (sc *scanner) skipSpace() {
	for sc.pos < len(sc.src) && isSpace(sc.src[sc.pos]) {
		sc.pos++
	}
}

// sequence parses whitespace separated slots up to the closing bracket of
// the current level. The closing bracket is left for the caller.
func (sc *scanner) sequence(depth int) ([]Step, error) {
	out := make([]Step, 0, 8)
	runStart := 0
	for {
		sc.skipSpace()
		if sc.eof() {
			if depth > 0 {
				return nil, sc.errorf(sc.pos, "unclosed '['")
			}
			return out, nil
		}
		ch := sc.src[sc.pos]
		switch ch {
		case ']':
			if depth == 0 {
				return nil, sc.errorf(sc.pos, "unmatched ']'")
			}
			return out, nil
		case '.':
			for sc.pos < len(sc.src) && sc.src[sc.pos] == '.' {
				out = append(out, Rest())
				sc.pos++
			}
		case '@':
			filled, err := sc.fill(out[runStart:])
			if err != nil {
				return nil, err
			}
			out = append(out[:runStart], filled...)
			runStart = len(out)
		case ',':
			return nil, sc.errorf(sc.pos, "unexpected ','")
		default:
			st, err := sc.token(depth)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
			for sc.pos < len(sc.src) && sc.src[sc.pos] == '.' {
				out = append(out, Hold())
				sc.pos++
			}
		}
	}
}

func (sc *scanner) token(depth int) (Step, error) {
	switch sc.src[sc.pos] {
	case '[':
		return sc.bracket(depth)
	case '?':
		sc.pos++
		return Wildcard(), nil
	}
	v, err := sc.value()
	if err != nil {
		return Step{}, err
	}
	return Note(v), nil
}

func (sc *scanner) bracket(depth int) (Step, error) {
	open := sc.pos
	if depth+1 > sc.cfg.MaxDepth {
		return Step{}, sc.errorf(open, "nesting deeper than %d", sc.cfg.MaxDepth)
	}
	sc.pos++
	isChord, err := sc.hasTopLevelComma(open)
	if err != nil {
		return Step{}, err
	}
	if isChord {
		return sc.chord(open)
	}
	children, err := sc.sequence(depth + 1)
	if err != nil {
		return Step{}, err
	}
	sc.pos++ // ']'
	if len(children) == 0 {
		return Step{}, sc.errorf(open, "empty group")
	}
	return Group(children...), nil
}

func (sc *scanner) hasTopLevelComma(open int) (bool, error) {
	level := 0
	for i := sc.pos; i < len(sc.src); i++ {
		switch sc.src[i] {
		case '[':
			level++
		case ']':
			if level == 0 {
				return false, nil
			}
			level--
		case ',':
			if level == 0 {
				return true, nil
			}
		}
	}
	return false, sc.errorf(open, "unclosed '['")
}

func (sc *scanner) chord(open int) (Step, error) {
	vals := make([]Value, 0, 4)
	for {
		sc.skipSpace()
		if sc.eof() {
			return Step{}, sc.errorf(open, "unclosed chord")
		}
		if isDelim(sc.src[sc.pos]) {
			return Step{}, sc.errorf(sc.pos, "malformed chord list")
		}
		v, err := sc.value()
		if err != nil {
			return Step{}, err
		}
		vals = append(vals, v)
		sc.skipSpace()
		if sc.eof() {
			return Step{}, sc.errorf(open, "unclosed chord")
		}
		switch sc.src[sc.pos] {
		case ',':
			sc.pos++
		case ']':
			sc.pos++
			return Chord(vals...), nil
		default:
			return Step{}, sc.errorf(sc.pos, "malformed chord list")
		}
	}
}

func (sc *scanner) value() (Value, error) {
	start := sc.pos
	ch := sc.src[sc.pos]
	if ch == '-' || ch == '+' || isDigit(ch) {
		i := sc.pos
		if ch == '-' || ch == '+' {
			i++
		}
		j := i
		for j < len(sc.src) && isDigit(sc.src[j]) {
			j++
		}
		if j == i {
			return Value{}, sc.errorf(start, "expected number")
		}
		n, err := strconv.Atoi(sc.src[sc.pos:j])
		if err != nil {
			return Value{}, sc.errorf(start, "bad number %q", sc.src[sc.pos:j])
		}
		sc.pos = j
		return Value{Num: float64(n)}, nil
	}
	for sc.pos < len(sc.src) && !isDelim(sc.src[sc.pos]) {
		sc.pos++
	}
	word := sc.src[start:sc.pos]
	if word == "" {
		return Value{}, sc.errorf(start, "unexpected %q", ch)
	}
	if pitch, ok := parseNoteName(word); ok {
		return Value{Num: float64(pitch), Abs: true}, nil
	}
	return Value{Symbol: word}, nil
}

// fill stretches run to '@N' slots according to the fill policy.
func (sc *scanner) fill(run []Step) ([]Step, error) {
	at := sc.pos
	sc.pos++
	start := sc.pos
	for sc.pos < len(sc.src) && isDigit(sc.src[sc.pos]) {
		sc.pos++
	}
	if start == sc.pos {
		return nil, sc.errorf(at, "expected number after '@'")
	}
	n, err := strconv.Atoi(sc.src[start:sc.pos])
	if err != nil || n <= 0 {
		return nil, sc.errorf(at, "bad fill length %q", sc.src[start:sc.pos])
	}
	if n > sc.cfg.MaxFill {
		return nil, sc.errorf(at, "fill length %d exceeds %d", n, sc.cfg.MaxFill)
	}
	if len(run) == 0 {
		return nil, sc.errorf(at, "nothing to fill")
	}
	out := make([]Step, n)
	for i := range out {
		switch {
		case i < len(run):
			out[i] = run[i].Clone()
		case sc.cfg.Fill == FillPad:
			out[i] = Rest()
		default:
			out[i] = run[i%len(run)].Clone()
		}
	}
	return out, nil
}

func isSpace(b byte) bool { return b == ' ' || b == '\n' || b == '\r' || b == '\t' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isDelim(b byte) bool {
	switch b {
	case '[', ']', ',', '.', '@', '?':
		return true
	}
	return isSpace(b)
}
