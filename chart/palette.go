package chart

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Colors is the fixed palette handed out to the first series of a chart.
var Colors = []string{
	"#4dc9f6",
	"#f67019",
	"#f53794",
	"#537bc4",
	"#acc236",
	"#166a8f",
	"#00a950",
	"#58595b",
	"#8549ba",
}

// Palette hands out Colors by index and random colors past the end of it.
// It is safe for concurrent use.
type Palette struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPalette uses src for colors beyond the fixed palette; pass a seeded
// source for reproducible output. A nil src seeds from the clock.
func NewPalette(src rand.Source) *Palette {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Palette{rnd: rand.New(src)}
}

func (p *Palette) Color(idx int) string {
	if idx >= 0 && idx < len(Colors) {
		return Colors[idx]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("#%06x", p.rnd.Intn(0x1000000))
}
