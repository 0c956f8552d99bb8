package aggregate

import (
	"context"
	"strings"

	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
)

// Notice is one recent Seoul subsidence incident shaped for the notices feed.
type Notice struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

const noticesCacheKey = "notices"

// Notices returns recent Seoul incident notices, keyword-filtered and capped
// at limit. The unfiltered feed is cached for the lookup TTL; filtering is
// applied per call.
func (s *Lookup) Notices(ctx context.Context, keywords string, limit int) ([]Notice, error) {
	var notices []Notice
	if hit, ok := s.cache.Get(noticesCacheKey); ok {
		notices = hit.([]Notice)
	} else {
		records, err := s.gateway.ListNotices(ctx, 1, 100)
		if err != nil {
			return nil, err
		}
		notices = buildNotices(records)
		s.cache.SetDefault(noticesCacheKey, notices)
	}

	return filterNotices(notices, keywords, limit), nil
}

func buildNotices(records []domain.IncidentRecord) []Notice {
	var notices []Notice
	for _, rec := range records {
		if !strings.Contains(domain.Normalize(rec.Province), "서울") {
			continue
		}
		district := rec.District
		if district == "" {
			district = "서울시"
		}
		date := rec.Date
		if at, ok := rec.OccurredAt(); ok {
			date = at.Format("2006-01-02")
		}
		description := rec.Detail
		if description == "" {
			description = "상세정보 없음"
		}
		notices = append(notices, Notice{
			ID:          rec.ID,
			Title:       district + " 지반침하 사고",
			Date:        date,
			Location:    strings.TrimSpace("서울특별시 " + rec.District),
			Description: description,
			Source:      "국토교통부",
		})
	}
	return notices
}

func filterNotices(notices []Notice, keywords string, limit int) []Notice {
	if limit <= 0 {
		limit = 10
	}

	filtered := notices
	if keywords != "" {
		var terms []string
		for _, k := range strings.Split(keywords, ",") {
			if k = strings.TrimSpace(k); k != "" {
				terms = append(terms, k)
			}
		}
		if len(terms) > 0 {
			filtered = nil
			for _, n := range notices {
				for _, term := range terms {
					if strings.Contains(n.Title, term) || strings.Contains(n.Description, term) {
						filtered = append(filtered, n)
						break
					}
				}
			}
		}
	}

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}
