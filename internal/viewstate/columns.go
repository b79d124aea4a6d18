package viewstate

// ColumnState 全局列顺序与可见性，可见性未设置的列视为可见
type ColumnState struct {
	Order      []string        `json:"order"`
	Visibility map[string]bool `json:"visibility,omitempty"`
}

// Visible 列是否可见
func (c ColumnState) Visible(id string) bool {
	v, ok := c.Visibility[id]
	return !ok || v
}

// VisibleColumns 按顺序返回可见列
func (c ColumnState) VisibleColumns() []string {
	out := make([]string, 0, len(c.Order))
	for _, id := range c.Order {
		if c.Visible(id) {
			out = append(out, id)
		}
	}
	return out
}

// Normalize 对齐默认列：顺序按 ApplyColumnOrder，丢弃未知列的可见性
func (c ColumnState) Normalize(defaults []string) ColumnState {
	known := make(map[string]bool, len(defaults))
	for _, id := range defaults {
		known[id] = true
	}

	out := ColumnState{Order: ApplyColumnOrder(c.Order, defaults)}
	for id, v := range c.Visibility {
		if !known[id] {
			continue
		}
		if out.Visibility == nil {
			out.Visibility = make(map[string]bool)
		}
		out.Visibility[id] = v
	}
	return out
}

// ApplyColumnOrder 保留已保存的顺序，丢弃未知列与重复列，新列按默认顺序追加到末尾
func ApplyColumnOrder(persisted, defaults []string) []string {
	known := make(map[string]bool, len(defaults))
	for _, id := range defaults {
		known[id] = true
	}

	out := make([]string, 0, len(defaults))
	seen := make(map[string]bool, len(defaults))
	for _, id := range persisted {
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range defaults {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}
