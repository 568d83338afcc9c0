package debug

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// HotStack is one folded stack and its sample count.
type HotStack struct {
	Stack string
	Count int64
}

// HotStacks returns the n stacks with the most samples, hottest first, and
// the total sample count across all stacks. Ties keep input order.
func HotStacks(folded []byte, n int) ([]HotStack, int64) {
	var (
		stacks []HotStack
		total  int64
	)
	scanner := bufio.NewScanner(bytes.NewReader(folded))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 {
			continue
		}
		count, err := strconv.ParseInt(line[idx+1:], 10, 64)
		if err != nil || count <= 0 {
			continue
		}
		stacks = append(stacks, HotStack{Stack: line[:idx], Count: count})
		total += count
	}

	sort.SliceStable(stacks, func(i, j int) bool {
		return stacks[i].Count > stacks[j].Count
	})
	if n >= 0 && len(stacks) > n {
		stacks = stacks[:n]
	}
	return stacks, total
}

// DumpHotStacks prints the n hottest folded stacks, leaf frame first.
func DumpHotStacks(w io.Writer, folded []byte, n int) {
	stacks, total := HotStacks(folded, n)

	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render("Hottest Stacks"))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("═", 85)))
	fmt.Fprintf(w, "  %s %s %s\n",
		debugHeader.Render("SAMPLES     "),
		debugHeader.Render("SHARE  "),
		debugHeader.Render("LEAF  (CALLERS)                       "))
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 85)))

	for _, s := range stacks {
		frames := strings.Split(s.Stack, ";")
		leaf := frames[len(frames)-1]
		callers := strings.Join(frames[:len(frames)-1], ";")
		fmt.Fprintf(w, "  %-13s %6.2f%%  %s %s\n",
			humanize.Comma(s.Count), float64(s.Count)/float64(total)*100, leaf, debugDim.Render(callers))
	}
}
