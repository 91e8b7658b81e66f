package api

import "testing"

func TestNewPageMeta(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		total       int
		wantPages   int
		wantNext    bool
		wantPrev    bool
	}{
		{"empty", 1, 20, 0, 0, false, false},
		{"single page", 1, 20, 5, 1, false, false},
		{"exact boundary", 1, 20, 20, 1, false, false},
		{"one over", 1, 20, 21, 2, true, false},
		{"middle page", 2, 10, 35, 4, true, true},
		{"last page", 4, 10, 35, 4, false, true},
		{"past the end", 9, 10, 35, 4, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := NewPageMeta(tt.page, tt.limit, tt.total)
			if meta.TotalPages != tt.wantPages {
				t.Fatalf("TotalPages = %d, want %d", meta.TotalPages, tt.wantPages)
			}
			if meta.HasNext != tt.wantNext {
				t.Fatalf("HasNext = %v, want %v", meta.HasNext, tt.wantNext)
			}
			if meta.HasPrev != tt.wantPrev {
				t.Fatalf("HasPrev = %v, want %v", meta.HasPrev, tt.wantPrev)
			}
			if meta.TotalCount != tt.total {
				t.Fatalf("TotalCount = %d, want %d", meta.TotalCount, tt.total)
			}
		})
	}
}
