package bom

// Consolidated holds one line per distinct part, in first-seen order, with
// quantities summed.
type Consolidated []Line

// Consolidate merges lines sharing a part id. Totals do not depend on input
// order; the output order is the order in which each part first appears.
// Callers combining several templates should concatenate every expansion
// first and consolidate once, so parts shared between templates merge.
func Consolidate(lines []Line) Consolidated {
	if len(lines) == 0 {
		return nil
	}
	index := make(map[string]int, len(lines))
	out := make(Consolidated, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.PartID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.PartID] = len(out)
		out = append(out, l)
	}
	return out
}

// Totals returns the part id -> total quantity view.
func (c Consolidated) Totals() map[string]float64 {
	m := make(map[string]float64, len(c))
	for _, l := range c {
		m[l.PartID] = l.Quantity
	}
	return m
}

// PartIDs returns the part ids in order.
func (c Consolidated) PartIDs() []string {
	ids := make([]string, len(c))
	for i, l := range c {
		ids[i] = l.PartID
	}
	return ids
}
