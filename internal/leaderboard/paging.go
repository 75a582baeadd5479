package leaderboard

// DefaultPageSize replaces any non-positive page size.
const DefaultPageSize = 25

// NormalizePageSize returns n, or DefaultPageSize when n is not positive.
func NormalizePageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	return n
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// TotalPages is ceil(total / pageSize). An empty board has zero pages.
func TotalPages(total int64, pageSize int) int64 {
	return ceilDiv(total, int64(NormalizePageSize(pageSize)))
}

// PageOf returns the page holding a 1-based rank. Rank 0 (absent) is page 0.
func PageOf(rank int64, pageSize int) int64 {
	return ceilDiv(rank, int64(NormalizePageSize(pageSize)))
}

// PageBounds clamps page into [1, TotalPages] and returns it together with
// the 0-based inclusive index window of that page.
func PageBounds(page int64, pageSize int, total int64) (int64, int64, int64) {
	ps := int64(NormalizePageSize(pageSize))
	if last := TotalPages(total, pageSize); page > last {
		page = last
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * ps
	return page, start, start + ps - 1
}

// PositionToPage maps a 1-based absolute position to its page and its
// 0-based offset within that page.
func PositionToPage(position int64, pageSize int) (int64, int64) {
	ps := int64(NormalizePageSize(pageSize))
	if position < 1 {
		return 0, 0
	}
	return ceilDiv(position, ps), (position - 1) % ps
}
