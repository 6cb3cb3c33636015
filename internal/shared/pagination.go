package shared

// ClampPage normalizes page and pageSize for probe-style listings. Page
// starts at 1; pageSize falls back to defaultSize and is capped at maxSize.
func ClampPage(page, pageSize, defaultSize, maxSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	if page <= 0 {
		page = 1
	}
	return page, pageSize
}
