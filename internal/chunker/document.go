package chunker

import "strings"

// document indexes a file's lines and per-line token estimates
type document struct {
	src    string
	starts []int // byte offset of each line
	est    []int // estimated tokens of each line, newline included
}

func newDocument(src string, estimate Estimator) *document {
	d := &document{src: src}
	if src == "" {
		return d
	}

	d.starts = append(d.starts, 0)
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' && i+1 < len(src) {
			d.starts = append(d.starts, i+1)
		}
	}

	d.est = make([]int, len(d.starts))
	for i := range d.starts {
		d.est[i] = estimate(d.rawLine(i + 1))
	}
	return d
}

func (d *document) lineCount() int {
	return len(d.starts)
}

// byteRange returns the half-open byte range of lines [start, end]
func (d *document) byteRange(start, end int) (int, int) {
	from := d.starts[start-1]
	to := len(d.src)
	if end < len(d.starts) {
		to = d.starts[end]
	}
	return from, to
}

// rawLine returns a line including its newline
func (d *document) rawLine(n int) string {
	from, to := d.byteRange(n, n)
	return d.src[from:to]
}

// line returns a line without its line terminator
func (d *document) line(n int) string {
	return strings.TrimRight(d.rawLine(n), "\r\n")
}

// text returns lines [start, end] verbatim
func (d *document) text(start, end int) string {
	from, to := d.byteRange(start, end)
	return d.src[from:to]
}

func (d *document) tokens(n int) int {
	return d.est[n-1]
}

// rangeTokens sums the line estimates of [start, end]
func (d *document) rangeTokens(start, end int) int {
	total := 0
	for n := start; n <= end; n++ {
		total += d.tokens(n)
	}
	return total
}
