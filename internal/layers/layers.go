// Package layers reads the layer table of a .kicad_pcb board.
package layers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// MaxLayers is the size of pcbnew's layer id space.
const MaxLayers = 50

// ErrNotBoard is returned when the file is not a kicad_pcb s-expression.
var ErrNotBoard = errors.New("not a kicad_pcb board")

// Table maps layer names to pcbnew layer ids.
type Table struct {
	byName map[string]int
	names  [MaxLayers]string
}

// UnknownLayerError reports a requested layer the board does not define.
type UnknownLayerError struct {
	Name  string
	Known []string
}

func (e *UnknownLayerError) Error() string {
	return fmt.Sprintf("unknown layer %q (board defines: %s)", e.Name, strings.Join(e.Known, ", "))
}

// ParseFile reads the layer table of the board at path.
func ParseFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open board: %w", err)
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads the layer table from r.
func Parse(r io.Reader, name string) (Table, error) {
	root, err := parseSexpr(name, r)
	if err != nil {
		return Table{}, err
	}
	if root.head() != "kicad_pcb" {
		return Table{}, fmt.Errorf("%s: %w", name, ErrNotBoard)
	}
	section := root.child("layers")
	if section == nil {
		return Table{}, fmt.Errorf("%s: no layers section: %w", name, ErrNotBoard)
	}
	t := Table{byName: make(map[string]int)}
	for _, item := range section.List.Items[1:] {
		fields := item.atoms()
		if len(fields) < 2 {
			continue
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil || id < 0 || id >= MaxLayers {
			return Table{}, fmt.Errorf("%s: bad layer id %q", name, fields[0])
		}
		t.names[id] = fields[1]
		t.byName[fields[1]] = id
	}
	return t, nil
}

// Len returns the number of defined layers.
func (t Table) Len() int { return len(t.byName) }

// Index returns the id of the layer called name.
func (t Table) Index(name string) (int, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Name returns the layer name for id, or "" when undefined.
func (t Table) Name(id int) string {
	if id < 0 || id >= MaxLayers {
		return ""
	}
	return t.names[id]
}

// Names lists the defined layers ordered by id.
func (t Table) Names() []string {
	ids := make([]int, 0, len(t.byName))
	for _, id := range t.byName {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.names[id])
	}
	return out
}

// Select resolves names to ids in request order. Duplicates are dropped.
func (t Table) Select(names []string) ([]int, error) {
	seen := make(map[int]bool, len(names))
	out := make([]int, 0, len(names))
	for _, name := range names {
		id, ok := t.byName[name]
		if !ok {
			return nil, &UnknownLayerError{Name: name, Known: t.Names()}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// Mask returns a MaxLayers long selection mask for ids.
func Mask(ids []int) [MaxLayers]bool {
	var mask [MaxLayers]bool
	for _, id := range ids {
		if id >= 0 && id < MaxLayers {
			mask[id] = true
		}
	}
	return mask
}
